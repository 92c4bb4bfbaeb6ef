// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/vlabel/internal/config"
	vllog "github.com/ManuGH/vlabel/internal/log"
	"github.com/spf13/cobra"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	// Safe defaults until config is loaded
	vllog.Configure(vllog.Config{
		Level:   "info",
		Service: "vlabel",
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vlabel",
		Short:         "Balanced video clip labeling service",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCmd(&configPath),
		newJournalCmd(&configPath),
		newConfigCmd(&configPath),
		newHealthcheckCmd(),
	)
	return root
}

// resolveConfigPath returns the explicit path, or ${VLABEL_DATA}/config.yaml
// when that file exists.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString("VLABEL_DATA", "data"))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

// loadConfig loads configuration with precedence ENV > file > defaults.
func loadConfig(explicit string) (config.AppConfig, string, error) {
	path := resolveConfigPath(explicit)
	cfg, err := config.NewLoader(path, version).Load()
	if err != nil {
		return cfg, path, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, path, nil
}

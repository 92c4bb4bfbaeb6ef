// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/ManuGH/vlabel/internal/audit"
	"github.com/ManuGH/vlabel/internal/ledger"
	"github.com/spf13/cobra"
)

func newJournalCmd(configPath *string) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect or maintain the label journal",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "journal file (defaults to <dataDir>/labels.jsonl)")

	resolve := func() (string, error) {
		if p := strings.TrimSpace(path); p != "" {
			return p, nil
		}
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			return "", err
		}
		return cfg.LedgerPath(), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Replay the journal and print what it contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolve()
			if err != nil {
				return err
			}
			led, err := openExisting(p, ledger.OpenReadOnly)
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()
			printJournalStats(cmd.OutOrStdout(), led)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "compact",
		Short: "Rewrite the journal keeping only live records (fails while the server is running)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolve()
			if err != nil {
				return err
			}
			led, err := openExisting(p, ledger.Open)
			if errors.Is(err, ledger.ErrLocked) {
				return fmt.Errorf("journal %s is in use; stop the server before compacting: %w", p, err)
			}
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			before := led.ReplayStats().Lines
			if err := led.Compact(); err != nil {
				return fmt.Errorf("compact %s: %w", p, err)
			}
			audit.NewLogger().JournalCompacted(p, before, led.Len())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "compacted %s: %d lines -> %d live records\n", p, before, led.Len())
			return nil
		},
	})
	return cmd
}

// openExisting opens a journal with open, refusing to create one.
func openExisting(path string, open func(string, ...ledger.Option) (*ledger.Ledger, error)) (*ledger.Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("journal %s does not exist", path)
		}
		return nil, err
	}
	return open(path)
}

func printJournalStats(w io.Writer, led *ledger.Ledger) {
	st := led.ReplayStats()
	_, _ = fmt.Fprintf(w, "journal:        %s\n", led.Path())
	_, _ = fmt.Fprintf(w, "lines:          %d\n", st.Lines)
	_, _ = fmt.Fprintf(w, "records:        %d\n", st.Records)
	_, _ = fmt.Fprintf(w, "tombstones:     %d\n", st.Tombstones)
	_, _ = fmt.Fprintf(w, "orphans:        %d\n", st.Orphans)
	_, _ = fmt.Fprintf(w, "malformed:      %d\n", st.Malformed)
	_, _ = fmt.Fprintf(w, "live records:   %d\n", led.Len())
	_, _ = fmt.Fprintf(w, "labeled videos: %d\n", led.LabeledVideos())

	counts := led.CountByUser()
	users := make([]string, 0, len(counts))
	for u := range counts {
		users = append(users, u)
	}
	slices.Sort(users)
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", u, counts[u])
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/vlabel/internal/api"
	"github.com/ManuGH/vlabel/internal/assign"
	"github.com/ManuGH/vlabel/internal/auth"
	"github.com/ManuGH/vlabel/internal/catalog"
	"github.com/ManuGH/vlabel/internal/config"
	"github.com/ManuGH/vlabel/internal/daemon"
	"github.com/ManuGH/vlabel/internal/ledger"
	vllog "github.com/ManuGH/vlabel/internal/log"
	"github.com/ManuGH/vlabel/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the labeling server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

// runtime is everything the server needs, opened in dependency order.
type runtime struct {
	cfg       config.AppConfig
	telemetry *telemetry.Provider
	ledger    *ledger.Ledger
	index     *catalog.Index
	catalog   *catalog.Catalog
	fsSource  *catalog.FSSource
	service   *assign.Service
	server    *api.Server
}

// Close releases resources in reverse opening order.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.index != nil {
		errs = append(errs, rt.index.Close())
	}
	if rt.ledger != nil {
		errs = append(errs, rt.ledger.Close())
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func buildSource(ctx context.Context, cfg config.AppConfig) (catalog.Source, *catalog.FSSource, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogBackendS3:
		src, err := catalog.NewS3Source(ctx, catalog.S3Options{
			Bucket:          cfg.Catalog.S3.Bucket,
			Prefix:          cfg.Catalog.S3.Prefix,
			Region:          cfg.Catalog.S3.Region,
			Endpoint:        cfg.Catalog.S3.Endpoint,
			AccessKeyID:     cfg.Catalog.S3.AccessKeyID,
			SecretAccessKey: cfg.Catalog.S3.SecretAccessKey,
			UsePathStyle:    cfg.Catalog.S3.UsePathStyle,
			PresignTTL:      cfg.Catalog.S3.PresignTTL,
			Extensions:      cfg.Catalog.Extensions,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	default:
		src := catalog.NewFSSource(cfg.VideosDir, cfg.Catalog.Extensions)
		return src, src, nil
	}
}

// buildRuntime opens the journal, catalog and engine and wires the HTTP server.
// On error everything already opened is closed again.
func buildRuntime(ctx context.Context, cfg config.AppConfig) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	rt.ledger, err = ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	src, fsSrc, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init catalog source: %w", err)
	}
	rt.fsSource = fsSrc

	rt.index, err = catalog.OpenIndex(cfg.CatalogIndexPath())
	if err != nil {
		return nil, fmt.Errorf("open catalog index: %w", err)
	}
	rt.catalog, err = catalog.New(ctx, src,
		catalog.WithIndex(rt.index),
		catalog.WithLazyRefresh(cfg.Catalog.RescanInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	rt.service, err = assign.New(assign.Config{
		LeaseTTL:            cfg.Assign.LeaseTTL,
		SingleLabelPerVideo: cfg.Assign.SingleLabelPerVideo,
		ActiveWindow:        cfg.Assign.ActiveWindow,
	}, rt.catalog, rt.ledger)
	if err != nil {
		return nil, fmt.Errorf("init assignment service: %w", err)
	}

	secret, err := auth.LoadOrCreateSecret(cfg.SecretPath())
	if err != nil {
		return nil, fmt.Errorf("load reviewer secret: %w", err)
	}
	sessions, err := auth.NewSessions(secret, cfg.Reviewer.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("init reviewer sessions: %w", err)
	}

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = cfg.LogService
	}
	var videos api.VideoOpener
	if fsSrc != nil {
		videos = fsSrc
	}
	rt.server = api.New(api.Config{
		StaticDir:        cfg.StaticDir,
		ReviewerPassword: cfg.Reviewer.Password,
		RateLimit:        cfg.RateLimit,
		TracingService:   tracingService,
	}, rt.service, sessions, videos)
	return rt, nil
}

// tasks returns the background jobs for rt.
func (rt *runtime) tasks() []daemon.Task {
	var tasks []daemon.Task
	if rt.fsSource != nil && rt.cfg.Catalog.Watch {
		w := catalog.NewWatcher(rt.catalog, rt.fsSource.Root(), 0)
		tasks = append(tasks, daemon.Task{Name: "catalog-watcher", Run: w.Run})
	}
	return tasks
}

func runServe(ctx context.Context, configPath string) error {
	logger := vllog.WithComponent("daemon")

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
		return err
	}

	vllog.Configure(vllog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = vllog.WithComponent("daemon")

	if path != "" {
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str("path", path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting vlabel")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	if cfg.Catalog.Backend == config.CatalogBackendS3 {
		logger.Info().Msgf("→ Catalog: s3://%s/%s (endpoint: %s)", cfg.Catalog.S3.Bucket, cfg.Catalog.S3.Prefix, maskURL(cfg.Catalog.S3.Endpoint))
	} else {
		logger.Info().Msgf("→ Catalog: %s (watch: %v)", cfg.VideosDir, cfg.Catalog.Watch)
	}
	logger.Info().Msgf("→ Lease TTL: %s, single label per video: %v", cfg.Assign.LeaseTTL, cfg.Assign.SingleLabelPerVideo)
	if cfg.Reviewer.Password == config.DefaultReviewPassword {
		logger.Warn().
			Str("security", "weak").
			Msg("→ Reviewer password is the default. Set VLABEL_REVIEWER_PASSWORD.")
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "startup.failed").Msg("failed to initialise")
		return err
	}

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.ListenAddr), daemon.Deps{
		Logger:     logger,
		APIHandler: rt.server.Handler(),
		Tasks:      rt.tasks(),
	})
	if err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("create daemon manager: %w", err)
	}
	mgr.RegisterShutdownHook("runtime", rt.Close)

	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Str("event", "manager.failed").Msg("daemon failed")
		return err
	}
	logger.Info().Msg("server exiting")
	return nil
}

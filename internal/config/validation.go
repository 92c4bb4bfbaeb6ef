// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks a resolved configuration. All failures are joined so the
// operator sees every problem in one pass.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		add("listen address is empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		add("data dir is empty")
	}
	if cfg.Assign.LeaseTTL <= 0 {
		add("assign.leaseTTL must be positive, got %s", cfg.Assign.LeaseTTL)
	}
	if cfg.Assign.ActiveWindow <= 0 {
		add("assign.activeWindow must be positive, got %s", cfg.Assign.ActiveWindow)
	}
	if cfg.Catalog.RescanInterval < 0 {
		add("catalog.rescanInterval must not be negative")
	}

	switch cfg.Catalog.Backend {
	case CatalogBackendFS:
		if strings.TrimSpace(cfg.VideosDir) == "" {
			add("videos dir is empty")
		}
	case CatalogBackendS3:
		if strings.TrimSpace(cfg.Catalog.S3.Bucket) == "" {
			add("catalog.s3.bucket is required for the s3 backend")
		}
		if (cfg.Catalog.S3.AccessKeyID == "") != (cfg.Catalog.S3.SecretAccessKey == "") {
			add("catalog.s3 access key id and secret must be set together")
		}
		if cfg.Catalog.S3.PresignTTL <= 0 {
			add("catalog.s3.presignTTL must be positive")
		}
	default:
		add("unknown catalog backend %q (supported: fs, s3)", cfg.Catalog.Backend)
	}

	if strings.TrimSpace(cfg.Reviewer.Password) == "" {
		add("reviewer password is empty")
	}
	if cfg.Reviewer.SessionTTL <= 0 {
		add("reviewer.sessionTTL must be positive")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.RequestsPerMinute <= 0 || cfg.RateLimit.LoginPerMinute <= 0) {
		add("rate limits must be positive when enabled")
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("unsupported tracing exporter %q (supported: grpc, http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("tracing endpoint is required when tracing is enabled")
		}
	}

	return errors.Join(errs...)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultLeaseTTL, cfg.Assign.LeaseTTL)
	assert.True(t, cfg.Assign.SingleLabelPerVideo)
	assert.Equal(t, CatalogBackendFS, cfg.Catalog.Backend)
	assert.Equal(t, []string{".mp4", ".webm", ".m4v", ".mov"}, cfg.Catalog.Extensions)
	assert.Equal(t, DefaultReviewPassword, cfg.Reviewer.Password)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "labels.jsonl"), cfg.LedgerPath())
	assert.Equal(t, "test", cfg.Version)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listenAddr: ":9100"
dataDir: /srv/vlabel
assign:
  leaseTTL: 90s
  singleLabelPerVideo: false
catalog:
  extensions: [MKV, .mp4]
  watch: false
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, "/srv/vlabel", cfg.DataDir)
	assert.Equal(t, 90*time.Second, cfg.Assign.LeaseTTL)
	assert.False(t, cfg.Assign.SingleLabelPerVideo)
	assert.False(t, cfg.Catalog.Watch)
	assert.Equal(t, []string{".mkv", ".mp4"}, cfg.Catalog.Extensions)
	// untouched sections keep defaults
	assert.Equal(t, DefaultActiveWindow, cfg.Assign.ActiveWindow)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "assign:\n  leaseTtl: 10s\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_MultipleDocumentsRejected(t *testing.T) {
	path := writeConfig(t, "listenAddr: \":1\"\n---\nlistenAddr: \":2\"\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := writeConfig(t, "assign:\n  leaseTTL: 90s\n")
	t.Setenv("VLABEL_LEASE_TTL", "30s")
	t.Setenv("VLABEL_LISTEN", "127.0.0.1:7000")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Assign.LeaseTTL)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	assert.Contains(t, l.ConsumedEnvKeys, "VLABEL_LEASE_TTL")
}

func TestLoad_LegacyEnvAliases(t *testing.T) {
	t.Setenv("PORT", "8123")
	t.Setenv("ASSIGNMENT_TTL", "45")
	t.Setenv("SINGLE_LABEL_PER_VIDEO", "0")
	t.Setenv("REVIEWER_PASSWORD", "hunter2")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8123", cfg.ListenAddr)
	assert.Equal(t, 45*time.Second, cfg.Assign.LeaseTTL)
	assert.False(t, cfg.Assign.SingleLabelPerVideo)
	assert.Equal(t, "hunter2", cfg.Reviewer.Password)
}

func TestLoad_PrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("ASSIGNMENT_TTL", "45")
	t.Setenv("VLABEL_LEASE_TTL", "2m")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Assign.LeaseTTL)
}

func TestValidate(t *testing.T) {
	base, err := NewLoader("", "").Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"zero lease ttl", func(c *AppConfig) { c.Assign.LeaseTTL = 0 }},
		{"zero active window", func(c *AppConfig) { c.Assign.ActiveWindow = 0 }},
		{"unknown backend", func(c *AppConfig) { c.Catalog.Backend = "ftp" }},
		{"s3 without bucket", func(c *AppConfig) { c.Catalog.Backend = CatalogBackendS3 }},
		{"half s3 credentials", func(c *AppConfig) {
			c.Catalog.Backend = CatalogBackendS3
			c.Catalog.S3.Bucket = "clips"
			c.Catalog.S3.AccessKeyID = "AKIA"
		}},
		{"empty password", func(c *AppConfig) { c.Reviewer.Password = " " }},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
			c.Telemetry.Endpoint = "localhost:4317"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Catalog.Extensions = append([]string(nil), base.Catalog.Extensions...)
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	s3ok := base
	s3ok.Catalog.Backend = CatalogBackendS3
	s3ok.Catalog.S3.Bucket = "clips"
	assert.NoError(t, Validate(s3ok))
}

func TestParseDuration_BareSeconds(t *testing.T) {
	t.Setenv("X_DUR", "180")
	assert.Equal(t, 180*time.Second, ParseDuration("X_DUR", time.Second))
	t.Setenv("X_DUR", "bogus")
	assert.Equal(t, time.Second, ParseDuration("X_DUR", time.Second))
}

func TestParseBool_Forms(t *testing.T) {
	for v, want := range map[string]bool{"1": true, "0": false, "yes": true, "off": false, "False": false} {
		t.Setenv("X_BOOL", v)
		assert.Equal(t, want, ParseBool("X_BOOL", !want), v)
	}
}

func TestParseList(t *testing.T) {
	t.Setenv("X_LIST", " .mp4, ,.webm ")
	assert.Equal(t, []string{".mp4", ".webm"}, ParseList("X_LIST", nil))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr     = ":8000"
	DefaultLeaseTTL       = 180 * time.Second
	DefaultActiveWindow   = 10 * time.Minute
	DefaultRescanInterval = 15 * time.Second
	DefaultSessionTTL     = 12 * time.Hour
	DefaultPresignTTL     = time.Hour
	DefaultReviewPassword = "review"
)

// DefaultExtensions are the clip file extensions picked up by the catalog.
var DefaultExtensions = []string{".mp4", ".webm", ".m4v", ".mov"}

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envStringAlias(key, alias, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	l.ConsumedEnvKeys[alias] = struct{}{}
	return ParseStringWithAlias(key, alias, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envBoolAlias(key, alias string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	l.ConsumedEnvKeys[alias] = struct{}{}
	if _, ok := os.LookupEnv(key); ok {
		return ParseBool(key, defaultVal)
	}
	return ParseBool(alias, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envDurationAlias(key, alias string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	l.ConsumedEnvKeys[alias] = struct{}{}
	if _, ok := os.LookupEnv(key); ok {
		return ParseDuration(key, defaultVal)
	}
	return ParseDuration(alias, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env -> normalise -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := l.defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)
	normalise(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) defaults() AppConfig {
	return AppConfig{
		Version:    l.version,
		ListenAddr: DefaultListenAddr,
		DataDir:    "data",
		VideosDir:  "videos",
		StaticDir:  "static",
		LogLevel:   "info",
		LogService: "vlabel",
		Catalog: CatalogConfig{
			Backend:        CatalogBackendFS,
			Extensions:     append([]string(nil), DefaultExtensions...),
			RescanInterval: DefaultRescanInterval,
			Watch:          true,
			S3:             S3Config{PresignTTL: DefaultPresignTTL},
		},
		Assign: AssignConfig{
			LeaseTTL:            DefaultLeaseTTL,
			SingleLabelPerVideo: true,
			ActiveWindow:        DefaultActiveWindow,
		},
		Reviewer: ReviewerConfig{
			Password:   DefaultReviewPassword,
			SessionTTL: DefaultSessionTTL,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
			LoginPerMinute:    10,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			SamplingRate: 1.0,
		},
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	return NewLoader(path, "").loadFile(path)
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.VideosDir, f.VideosDir)
	setString(&cfg.StaticDir, f.StaticDir)

	if f.Log != nil {
		setString(&cfg.LogLevel, f.Log.Level)
		setString(&cfg.LogService, f.Log.Service)
	}
	if c := f.Catalog; c != nil {
		setString(&cfg.Catalog.Backend, c.Backend)
		if len(c.Extensions) > 0 {
			cfg.Catalog.Extensions = append([]string(nil), c.Extensions...)
		}
		setDuration(&cfg.Catalog.RescanInterval, c.RescanInterval)
		setBool(&cfg.Catalog.Watch, c.Watch)
		if s := c.S3; s != nil {
			setString(&cfg.Catalog.S3.Bucket, s.Bucket)
			setString(&cfg.Catalog.S3.Prefix, s.Prefix)
			setString(&cfg.Catalog.S3.Region, s.Region)
			setString(&cfg.Catalog.S3.Endpoint, s.Endpoint)
			setString(&cfg.Catalog.S3.AccessKeyID, s.AccessKeyID)
			setString(&cfg.Catalog.S3.SecretAccessKey, s.SecretAccessKey)
			setBool(&cfg.Catalog.S3.UsePathStyle, s.UsePathStyle)
			setDuration(&cfg.Catalog.S3.PresignTTL, s.PresignTTL)
		}
	}
	if a := f.Assign; a != nil {
		setDuration(&cfg.Assign.LeaseTTL, a.LeaseTTL)
		setBool(&cfg.Assign.SingleLabelPerVideo, a.SingleLabelPerVideo)
		setDuration(&cfg.Assign.ActiveWindow, a.ActiveWindow)
	}
	if r := f.Reviewer; r != nil {
		setString(&cfg.Reviewer.Password, r.Password)
		setDuration(&cfg.Reviewer.SessionTTL, r.SessionTTL)
	}
	if r := f.RateLimit; r != nil {
		setBool(&cfg.RateLimit.Enabled, r.Enabled)
		setInt(&cfg.RateLimit.RequestsPerMinute, r.RequestsPerMinute)
		setInt(&cfg.RateLimit.LoginPerMinute, r.LoginPerMinute)
	}
	if t := f.Telemetry; t != nil {
		setBool(&cfg.Telemetry.Enabled, t.Enabled)
		setString(&cfg.Telemetry.Exporter, t.Exporter)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		if t.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *t.SamplingRate
		}
	}
}

// mergeEnvConfig applies VLABEL_* variables. The unprefixed names used by the
// first release (PORT, ASSIGNMENT_TTL, SINGLE_LABEL_PER_VIDEO, REVIEWER_PASSWORD)
// are accepted as aliases.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	if port := l.envString("PORT", ""); port != "" {
		cfg.ListenAddr = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.ListenAddr = l.envString("VLABEL_LISTEN", cfg.ListenAddr)
	cfg.DataDir = l.envString("VLABEL_DATA", cfg.DataDir)
	cfg.VideosDir = l.envString("VLABEL_VIDEOS", cfg.VideosDir)
	cfg.StaticDir = l.envString("VLABEL_STATIC", cfg.StaticDir)
	cfg.LogLevel = l.envString("VLABEL_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("VLABEL_LOG_SERVICE", cfg.LogService)

	cfg.Catalog.Backend = l.envString("VLABEL_CATALOG_BACKEND", cfg.Catalog.Backend)
	l.ConsumedEnvKeys["VLABEL_CATALOG_EXTENSIONS"] = struct{}{}
	cfg.Catalog.Extensions = ParseList("VLABEL_CATALOG_EXTENSIONS", cfg.Catalog.Extensions)
	cfg.Catalog.RescanInterval = l.envDuration("VLABEL_CATALOG_RESCAN_INTERVAL", cfg.Catalog.RescanInterval)
	cfg.Catalog.Watch = l.envBool("VLABEL_CATALOG_WATCH", cfg.Catalog.Watch)
	cfg.Catalog.S3.Bucket = l.envString("VLABEL_S3_BUCKET", cfg.Catalog.S3.Bucket)
	cfg.Catalog.S3.Prefix = l.envString("VLABEL_S3_PREFIX", cfg.Catalog.S3.Prefix)
	cfg.Catalog.S3.Region = l.envString("VLABEL_S3_REGION", cfg.Catalog.S3.Region)
	cfg.Catalog.S3.Endpoint = l.envString("VLABEL_S3_ENDPOINT", cfg.Catalog.S3.Endpoint)
	cfg.Catalog.S3.AccessKeyID = l.envString("VLABEL_S3_ACCESS_KEY_ID", cfg.Catalog.S3.AccessKeyID)
	cfg.Catalog.S3.SecretAccessKey = l.envString("VLABEL_S3_SECRET_ACCESS_KEY", cfg.Catalog.S3.SecretAccessKey)
	cfg.Catalog.S3.UsePathStyle = l.envBool("VLABEL_S3_PATH_STYLE", cfg.Catalog.S3.UsePathStyle)
	cfg.Catalog.S3.PresignTTL = l.envDuration("VLABEL_S3_PRESIGN_TTL", cfg.Catalog.S3.PresignTTL)

	cfg.Assign.LeaseTTL = l.envDurationAlias("VLABEL_LEASE_TTL", "ASSIGNMENT_TTL", cfg.Assign.LeaseTTL)
	cfg.Assign.SingleLabelPerVideo = l.envBoolAlias("VLABEL_SINGLE_LABEL_PER_VIDEO", "SINGLE_LABEL_PER_VIDEO", cfg.Assign.SingleLabelPerVideo)
	cfg.Assign.ActiveWindow = l.envDuration("VLABEL_ACTIVE_WINDOW", cfg.Assign.ActiveWindow)

	cfg.Reviewer.Password = l.envStringAlias("VLABEL_REVIEWER_PASSWORD", "REVIEWER_PASSWORD", cfg.Reviewer.Password)
	cfg.Reviewer.SessionTTL = l.envDuration("VLABEL_REVIEWER_SESSION_TTL", cfg.Reviewer.SessionTTL)

	cfg.RateLimit.Enabled = l.envBool("VLABEL_RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = l.envInt("VLABEL_RATELIMIT_RPM", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.LoginPerMinute = l.envInt("VLABEL_RATELIMIT_LOGIN_RPM", cfg.RateLimit.LoginPerMinute)

	cfg.Telemetry.Enabled = l.envBool("VLABEL_TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("VLABEL_TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("VLABEL_TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("VLABEL_TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

func normalise(cfg *AppConfig) {
	for _, dir := range []*string{&cfg.DataDir, &cfg.VideosDir, &cfg.StaticDir} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}
	cfg.Catalog.Backend = strings.ToLower(strings.TrimSpace(cfg.Catalog.Backend))
	for i, ext := range cfg.Catalog.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Catalog.Extensions[i] = ext
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}

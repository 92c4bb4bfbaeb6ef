// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"
)

// Catalog backends.
const (
	CatalogBackendFS = "fs"
	CatalogBackendS3 = "s3"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version string

	ListenAddr string
	DataDir    string
	VideosDir  string
	StaticDir  string

	LogLevel   string
	LogService string

	Catalog   CatalogConfig
	Assign    AssignConfig
	Reviewer  ReviewerConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// CatalogConfig controls how clips are discovered.
type CatalogConfig struct {
	Backend        string
	Extensions     []string
	RescanInterval time.Duration
	Watch          bool
	S3             S3Config
}

// S3Config describes an object-storage clip source.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// AssignConfig is consumed by the assignment engine.
type AssignConfig struct {
	LeaseTTL            time.Duration
	SingleLabelPerVideo bool
	ActiveWindow        time.Duration
}

// ReviewerConfig protects the review dashboard with a shared password.
type ReviewerConfig struct {
	Password   string
	SessionTTL time.Duration
}

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	LoginPerMinute    int
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// LedgerPath returns the label journal location inside the data directory.
func (c AppConfig) LedgerPath() string {
	return filepath.Join(c.DataDir, "labels.jsonl")
}

// CatalogIndexPath returns the sqlite catalog index location.
func (c AppConfig) CatalogIndexPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// SecretPath returns the reviewer signing secret location.
func (c AppConfig) SecretPath() string {
	return filepath.Join(c.DataDir, "secret.txt")
}

// FileConfig mirrors the YAML file layout. Pointer fields distinguish
// "absent" from "zero" so only keys present in the file override defaults.
type FileConfig struct {
	ListenAddr *string `yaml:"listenAddr"`
	DataDir    *string `yaml:"dataDir"`
	VideosDir  *string `yaml:"videosDir"`
	StaticDir  *string `yaml:"staticDir"`

	Log       *LogFileConfig       `yaml:"log"`
	Catalog   *CatalogFileConfig   `yaml:"catalog"`
	Assign    *AssignFileConfig    `yaml:"assign"`
	Reviewer  *ReviewerFileConfig  `yaml:"reviewer"`
	RateLimit *RateLimitFileConfig `yaml:"rateLimit"`
	Telemetry *TelemetryFileConfig `yaml:"telemetry"`
}

type LogFileConfig struct {
	Level   *string `yaml:"level"`
	Service *string `yaml:"service"`
}

type CatalogFileConfig struct {
	Backend        *string        `yaml:"backend"`
	Extensions     []string       `yaml:"extensions"`
	RescanInterval *time.Duration `yaml:"rescanInterval"`
	Watch          *bool          `yaml:"watch"`
	S3             *S3FileConfig  `yaml:"s3"`
}

type S3FileConfig struct {
	Bucket          *string        `yaml:"bucket"`
	Prefix          *string        `yaml:"prefix"`
	Region          *string        `yaml:"region"`
	Endpoint        *string        `yaml:"endpoint"`
	AccessKeyID     *string        `yaml:"accessKeyId"`
	SecretAccessKey *string        `yaml:"secretAccessKey"`
	UsePathStyle    *bool          `yaml:"usePathStyle"`
	PresignTTL      *time.Duration `yaml:"presignTTL"`
}

type AssignFileConfig struct {
	LeaseTTL            *time.Duration `yaml:"leaseTTL"`
	SingleLabelPerVideo *bool          `yaml:"singleLabelPerVideo"`
	ActiveWindow        *time.Duration `yaml:"activeWindow"`
}

type ReviewerFileConfig struct {
	Password   *string        `yaml:"password"`
	SessionTTL *time.Duration `yaml:"sessionTTL"`
}

type RateLimitFileConfig struct {
	Enabled           *bool `yaml:"enabled"`
	RequestsPerMinute *int  `yaml:"requestsPerMinute"`
	LoginPerMinute    *int  `yaml:"loginPerMinute"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	Exporter     *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
}

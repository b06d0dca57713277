// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Redis         RedisConfig         `yaml:"redis"`
	Dedupe        DedupeConfig        `yaml:"dedupe"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig describes session lifecycle and cleanup settings.
//
// TimeoutMinutes is the single source of truth for "expired": the lifecycle
// manager's expiry-on-read and the sweeper's cutoff both derive from it, so
// the two subsystems can never disagree about what expired means.
type SessionConfig struct {
	TimeoutMinutes int           `yaml:"timeout_minutes"`
	RecordTTL      time.Duration `yaml:"record_ttl"`
	Store          StoreConfig   `yaml:"store"`
	Cleanup        CleanupConfig `yaml:"cleanup"`
	Retry          RetryConfig   `yaml:"retry"`
}

// Timeout returns the session inactivity timeout as a duration.
func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// CleanupConfig describes the sweeper schedule and behavior.
type CleanupConfig struct {
	Interval  time.Duration `yaml:"interval"`
	DryRun    bool          `yaml:"dry_run"`
	BatchSize int           `yaml:"batch_size"`
	ScanLimit int           `yaml:"scan_limit"`
}

// RetryConfig describes bounded exponential retry at the lifecycle manager
// boundary for session store writes.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// WorkflowConfig describes workflow context persistence settings.
type WorkflowConfig struct {
	Store StoreConfig `yaml:"store"`
}

// StoreConfig describes a persistence backend.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig describes the optional Redis backend used for ticket number
// sequencing and message deduplication.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	AddrEnv string `yaml:"addr_env"`
	DB      int    `yaml:"db"`
}

// DedupeConfig describes inbound message deduplication.
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			TimeoutMinutes: 30,
			RecordTTL:      24 * time.Hour,
			Store: StoreConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Cleanup: CleanupConfig{
				Interval:  5 * time.Minute,
				BatchSize: 25,
				ScanLimit: 500,
			},
			Retry: RetryConfig{
				MaxAttempts:    3,
				BackoffInitial: 100 * time.Millisecond,
				BackoffMax:     2 * time.Second,
			},
		},
		Workflow: WorkflowConfig{
			Store: StoreConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Redis: RedisConfig{
			AddrEnv: "ADUAN_REDIS_ADDR",
		},
		Dedupe: DedupeConfig{
			TTL: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Session.TimeoutMinutes < 1 {
		errs = append(errs, "session.timeout_minutes must be at least 1")
	}
	if c.Session.Cleanup.BatchSize < 1 {
		errs = append(errs, "session.cleanup.batch_size must be at least 1")
	}
	if c.Session.Cleanup.Interval < time.Second {
		errs = append(errs, "session.cleanup.interval must be at least 1s")
	}
	if c.Session.Retry.MaxAttempts < 1 {
		errs = append(errs, "session.retry.max_attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads ADUAN_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ADUAN_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ADUAN_SESSION_TIMEOUT_MINUTES"); v != "" {
		var minutes int
		if _, err := fmt.Sscanf(v, "%d", &minutes); err == nil {
			cfg.Session.TimeoutMinutes = minutes
		}
	}
	if v := os.Getenv("ADUAN_CLEANUP_DRY_RUN"); v != "" {
		cfg.Session.Cleanup.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("ADUAN_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("ADUAN_SESSION_STORE_DRIVER"); v != "" {
		cfg.Session.Store.Driver = v
	}
	if v := os.Getenv("ADUAN_WORKFLOW_STORE_DRIVER"); v != "" {
		cfg.Workflow.Store.Driver = v
	}
}

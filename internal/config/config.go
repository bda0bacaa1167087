// Package config provides configuration management for ergate. It
// supports loading configuration from environment variables, files
// (YAML/JSON), and defaults, with a clear precedence order: env > file >
// defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ergatehq/ergate/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config is the complete ergate process configuration: how a worker or
// publisher connects to its queue and state store, and how it reports
// on itself.
type Config struct {
	Queue         QueueConfig         `json:"queue" yaml:"queue"`
	StateStore    StateStoreConfig    `json:"state_store" yaml:"state_store"`
	Publisher     PublisherConfig     `json:"publisher" yaml:"publisher"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// QueueConfig selects and configures the Queue backend.
type QueueConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `json:"backend" yaml:"backend"`
	Redis   RedisConfig `json:"redis" yaml:"redis"`
}

// StateStoreConfig selects and configures the StateStore backend.
type StateStoreConfig struct {
	// Backend is "memory", "redis", or "sqlite".
	Backend string      `json:"backend" yaml:"backend"`
	Redis   RedisConfig `json:"redis" yaml:"redis"`
	SQLite  SQLiteConfig `json:"sqlite" yaml:"sqlite"`
}

// RedisConfig holds connection settings shared by the Redis queue and
// state-store backends.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// SQLiteConfig holds the file path for the SQLite state-store backend.
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// PublisherConfig controls the publisher's poll cadence.
type PublisherConfig struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig holds Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig holds Sentry error monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
	Release     string  `json:"release" yaml:"release"`
}

// Default values.
const (
	DefaultQueueBackend      = "memory"
	DefaultStateStoreBackend = "memory"
	DefaultRedisAddr         = "localhost:6379"
	DefaultSQLitePath        = "./data/ergate.db"
	DefaultPollInterval      = 2 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultMetricsEnabled    = false
	DefaultMetricsPort       = 9091
	DefaultMetricsPath       = "/metrics"
	DefaultTracingEnabled    = false
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultSampleRate        = 0.1
	DefaultSentryEnabled     = false
	DefaultSentryEnv         = "development"
	DefaultSentrySampleRate  = 1.0
)

// Valid values for validation.
var (
	ValidLogLevels     = []string{"debug", "info", "warn", "error"}
	ValidLogFormats    = []string{"json", "text"}
	ValidQueueBackends = []string{"memory", "redis"}
	ValidStoreBackends = []string{"memory", "redis", "sqlite"}
)

// Load loads configuration from environment variables and an optional
// config file. Precedence: env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := Default()

	if configFile := os.Getenv("ERGATE_CONFIG_FILE"); configFile != "" {
		validatedPath, err := validation.ValidateConfigPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("config file path validation failed: %w", err)
		}

		fileCfg, err := loadFile(validatedPath)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with every field set to its default value.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			Backend: DefaultQueueBackend,
			Redis:   RedisConfig{Addr: DefaultRedisAddr},
		},
		StateStore: StateStoreConfig{
			Backend: DefaultStateStoreBackend,
			Redis:   RedisConfig{Addr: DefaultRedisAddr},
			SQLite:  SQLiteConfig{Path: DefaultSQLitePath},
		},
		Publisher: PublisherConfig{
			PollInterval: DefaultPollInterval,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Port:    DefaultMetricsPort,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:    DefaultTracingEnabled,
				Endpoint:   DefaultTracingEndpoint,
				SampleRate: DefaultSampleRate,
			},
			Sentry: SentryConfig{
				Enabled:     DefaultSentryEnabled,
				Environment: DefaultSentryEnv,
				SampleRate:  DefaultSentrySampleRate,
			},
		},
	}
}

// loadFile loads configuration from a YAML or JSON file.
func loadFile(path string) (*Config, error) {
	safePath := filepath.Clean(path)

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &Config{}
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}

	return cfg, nil
}

// loadEnv overrides non-zero-valued fields of cfg from environment
// variables.
func loadEnv(cfg *Config) *Config {
	if backend := os.Getenv("ERGATE_QUEUE_BACKEND"); backend != "" {
		cfg.Queue.Backend = backend
	}
	if addr := os.Getenv("ERGATE_QUEUE_REDIS_ADDR"); addr != "" {
		cfg.Queue.Redis.Addr = addr
	}
	if pw := os.Getenv("ERGATE_QUEUE_REDIS_PASSWORD"); pw != "" {
		cfg.Queue.Redis.Password = pw
	}
	if db := os.Getenv("ERGATE_QUEUE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Queue.Redis.DB = n
		}
	}

	if backend := os.Getenv("ERGATE_STATE_STORE_BACKEND"); backend != "" {
		cfg.StateStore.Backend = backend
	}
	if addr := os.Getenv("ERGATE_STATE_STORE_REDIS_ADDR"); addr != "" {
		cfg.StateStore.Redis.Addr = addr
	}
	if pw := os.Getenv("ERGATE_STATE_STORE_REDIS_PASSWORD"); pw != "" {
		cfg.StateStore.Redis.Password = pw
	}
	if db := os.Getenv("ERGATE_STATE_STORE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.StateStore.Redis.DB = n
		}
	}
	if path := os.Getenv("ERGATE_STATE_STORE_SQLITE_PATH"); path != "" {
		cfg.StateStore.SQLite.Path = path
	}

	if interval := os.Getenv("ERGATE_PUBLISHER_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Publisher.PollInterval = d
		}
	}

	if level := os.Getenv("ERGATE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("ERGATE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if enabled := os.Getenv("ERGATE_METRICS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Observability.Metrics.Enabled = b
		}
	}
	if port := os.Getenv("ERGATE_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Observability.Metrics.Port = p
		}
	}
	if path := os.Getenv("ERGATE_METRICS_PATH"); path != "" {
		cfg.Observability.Metrics.Path = path
	}

	if enabled := os.Getenv("ERGATE_TRACING_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Observability.Tracing.Enabled = b
		}
	}
	if endpoint := os.Getenv("ERGATE_TRACING_ENDPOINT"); endpoint != "" {
		cfg.Observability.Tracing.Endpoint = endpoint
	}
	if rate := os.Getenv("ERGATE_TRACING_SAMPLE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = r
		}
	}

	if enabled := os.Getenv("ERGATE_SENTRY_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Observability.Sentry.Enabled = b
		}
	}
	if dsn := os.Getenv("ERGATE_SENTRY_DSN"); dsn != "" {
		cfg.Observability.Sentry.DSN = dsn
	}
	if env := os.Getenv("ERGATE_SENTRY_ENVIRONMENT"); env != "" {
		cfg.Observability.Sentry.Environment = env
	}
	if rate := os.Getenv("ERGATE_SENTRY_SAMPLE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Observability.Sentry.SampleRate = r
		}
	}
	if release := os.Getenv("ERGATE_SENTRY_RELEASE"); release != "" {
		cfg.Observability.Sentry.Release = release
	}

	return cfg
}

// merge merges two configs, preferring non-zero values from override.
func merge(base, override *Config) *Config {
	result := *base

	if override.Queue.Backend != "" {
		result.Queue.Backend = override.Queue.Backend
	}
	if override.Queue.Redis.Addr != "" {
		result.Queue.Redis = override.Queue.Redis
	}

	if override.StateStore.Backend != "" {
		result.StateStore.Backend = override.StateStore.Backend
	}
	if override.StateStore.Redis.Addr != "" {
		result.StateStore.Redis = override.StateStore.Redis
	}
	if override.StateStore.SQLite.Path != "" {
		result.StateStore.SQLite.Path = override.StateStore.SQLite.Path
	}

	if override.Publisher.PollInterval != 0 {
		result.Publisher.PollInterval = override.Publisher.PollInterval
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	if override.Observability.Metrics.Enabled != DefaultMetricsEnabled {
		result.Observability.Metrics.Enabled = override.Observability.Metrics.Enabled
	}
	if override.Observability.Metrics.Port != 0 {
		result.Observability.Metrics.Port = override.Observability.Metrics.Port
	}
	if override.Observability.Metrics.Path != "" {
		result.Observability.Metrics.Path = override.Observability.Metrics.Path
	}

	if override.Observability.Tracing.Enabled != DefaultTracingEnabled {
		result.Observability.Tracing.Enabled = override.Observability.Tracing.Enabled
	}
	if override.Observability.Tracing.Endpoint != "" {
		result.Observability.Tracing.Endpoint = override.Observability.Tracing.Endpoint
	}
	if override.Observability.Tracing.SampleRate != 0 {
		result.Observability.Tracing.SampleRate = override.Observability.Tracing.SampleRate
	}

	if override.Observability.Sentry.Enabled != DefaultSentryEnabled {
		result.Observability.Sentry.Enabled = override.Observability.Sentry.Enabled
	}
	if override.Observability.Sentry.DSN != "" {
		result.Observability.Sentry.DSN = override.Observability.Sentry.DSN
	}
	if override.Observability.Sentry.Environment != "" {
		result.Observability.Sentry.Environment = override.Observability.Sentry.Environment
	}
	if override.Observability.Sentry.SampleRate != 0 {
		result.Observability.Sentry.SampleRate = override.Observability.Sentry.SampleRate
	}
	if override.Observability.Sentry.Release != "" {
		result.Observability.Sentry.Release = override.Observability.Sentry.Release
	}

	return &result
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if !contains(ValidQueueBackends, c.Queue.Backend) {
		return fmt.Errorf("invalid queue backend: %s (valid: %v)", c.Queue.Backend, ValidQueueBackends)
	}
	if !contains(ValidStoreBackends, c.StateStore.Backend) {
		return fmt.Errorf("invalid state store backend: %s (valid: %v)", c.StateStore.Backend, ValidStoreBackends)
	}
	if c.StateStore.Backend == "sqlite" && c.StateStore.SQLite.Path == "" {
		return fmt.Errorf("sqlite state store requires a path")
	}

	if c.Publisher.PollInterval <= 0 {
		return fmt.Errorf("publisher poll interval must be positive: %s", c.Publisher.PollInterval)
	}

	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}

	if c.Observability.Metrics.Enabled {
		if c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Observability.Metrics.Port)
		}
		if c.Observability.Metrics.Path == "" {
			return fmt.Errorf("metrics path cannot be empty when metrics enabled")
		}
	}

	if c.Observability.Tracing.Enabled {
		if c.Observability.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing endpoint cannot be empty when tracing enabled")
		}
		if c.Observability.Tracing.SampleRate < 0 || c.Observability.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing sample rate must be between 0 and 1: %f", c.Observability.Tracing.SampleRate)
		}
	}

	if c.Observability.Sentry.Enabled {
		if c.Observability.Sentry.DSN == "" {
			return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
		}
		if c.Observability.Sentry.SampleRate < 0 || c.Observability.Sentry.SampleRate > 1 {
			return fmt.Errorf("sentry sample rate must be between 0 and 1: %f", c.Observability.Sentry.SampleRate)
		}
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

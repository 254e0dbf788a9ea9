// Package config loads process configuration from an optional YAML file and
// environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string, a postgres:// URL or a sqlite file path.
	DatabaseURL string `mapstructure:"database_url"`
	// DatabaseDriver is "postgres" or "sqlite". Inferred from DatabaseURL
	// when empty.
	DatabaseDriver string `mapstructure:"database_driver"`

	// HTTP server port for the controller
	HTTPPort int `mapstructure:"http_port"`

	// Claims older than LockTimeout are returned to pending by the reaper,
	// which scans every ReaperInterval.
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`

	// Worker-specific configuration
	WorkerID           string        `mapstructure:"worker_id"`
	WorkerConcurrency  int           `mapstructure:"worker_concurrency"`
	WorkerPollInterval time.Duration `mapstructure:"worker_poll_interval"`
	WorkerMaxBackoff   time.Duration `mapstructure:"worker_max_backoff"`
	WorkerJobTimeout   time.Duration `mapstructure:"worker_job_timeout"`
	// WorkDir roots the file executors.
	WorkDir string `mapstructure:"workdir"`

	// RedisURL enables ready notifications between processes.
	RedisURL string `mapstructure:"redis_url"`

	// AdminTokenHash is the hex SHA-256 of the admin bearer token.
	AdminTokenHash string `mapstructure:"admin_token_hash"`
	// EnqueueRateLimit is requests per second per client on POST /jobs.
	EnqueueRateLimit float64 `mapstructure:"enqueue_rate_limit"`
	EnqueueBurst     int     `mapstructure:"enqueue_burst"`

	LogLevel string `mapstructure:"log_level"`

	// OpenTelemetry collector endpoint (e.g., "localhost:4317"). Empty
	// disables trace export.
	OTELEndpoint string `mapstructure:"otel_endpoint"`
}

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	"database_url":         "DATABASE_URL",
	"database_driver":      "DATABASE_DRIVER",
	"http_port":            "PORT",
	"lock_timeout":         "LOCK_TIMEOUT",
	"reaper_interval":      "REAPER_INTERVAL",
	"worker_id":            "WORKER_ID",
	"worker_concurrency":   "WORKER_CONCURRENCY",
	"worker_poll_interval": "WORKER_POLL_INTERVAL",
	"worker_max_backoff":   "WORKER_MAX_BACKOFF",
	"worker_job_timeout":   "WORKER_JOB_TIMEOUT",
	"workdir":              "WORKDIR",
	"redis_url":            "REDIS_URL",
	"admin_token_hash":     "ADMIN_TOKEN_HASH",
	"enqueue_rate_limit":   "ENQUEUE_RATE_LIMIT",
	"enqueue_burst":        "ENQUEUE_BURST",
	"log_level":            "LOG_LEVEL",
	"otel_endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Load reads configuration. With a non-empty path that file must exist;
// otherwise ./jobqueue.yaml is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database_driver", "")
	v.SetDefault("http_port", 6161)
	v.SetDefault("lock_timeout", 5*time.Minute)
	v.SetDefault("reaper_interval", 30*time.Second)
	v.SetDefault("worker_concurrency", 1)
	v.SetDefault("worker_poll_interval", 1*time.Second)
	v.SetDefault("worker_max_backoff", 30*time.Second)
	v.SetDefault("worker_job_timeout", 30*time.Minute)
	v.SetDefault("enqueue_rate_limit", 50.0)
	v.SetDefault("enqueue_burst", 100)
	v.SetDefault("log_level", "info")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("jobqueue")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}

	if c.DatabaseDriver == "" {
		c.DatabaseDriver = InferDriver(c.DatabaseURL)
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("invalid database_driver %q: must be %q or %q", c.DatabaseDriver, DriverPostgres, DriverSQLite)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive, got %d", c.WorkerConcurrency)
	}

	durations := map[string]time.Duration{
		"lock_timeout":         c.LockTimeout,
		"reaper_interval":      c.ReaperInterval,
		"worker_poll_interval": c.WorkerPollInterval,
		"worker_max_backoff":   c.WorkerMaxBackoff,
		"worker_job_timeout":   c.WorkerJobTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.EnqueueRateLimit < 0 {
		return fmt.Errorf("enqueue_rate_limit must not be negative, got %v", c.EnqueueRateLimit)
	}
	return nil
}

// InferDriver guesses the driver from a connection string.
func InferDriver(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), lower == ":memory:":
		return DriverSQLite
	default:
		return DriverPostgres
	}
}

// Package config loads keypool CLI settings from a YAML file and the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, KEYPOOL_* variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds every CLI setting.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" envPrefix:"KEYPOOL_DB_"`
	Pool      PoolConfig      `yaml:"pool" envPrefix:"KEYPOOL_POOL_"`
	Run       RunConfig       `yaml:"run" envPrefix:"KEYPOOL_RUN_"`
	Providers ProvidersConfig `yaml:"providers" envPrefix:"KEYPOOL_"`
	Log       LogConfig       `yaml:"log" envPrefix:"KEYPOOL_LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"KEYPOOL_METRICS_"`
}

// DatabaseConfig selects the credential store.
type DatabaseConfig struct {
	// Driver is one of memory, sqlite, postgres, mysql.
	Driver string `yaml:"driver" env:"DRIVER"`

	// DSN is the driver connection string; a file path for sqlite.
	DSN string `yaml:"dsn" env:"DSN"`

	// Table overrides the credentials table name.
	Table string `yaml:"table" env:"TABLE"`
}

// PoolConfig tunes credential selection.
// Zero values are rejected by Validate since the pool reads them as "use the default".
type PoolConfig struct {
	CooldownWindow time.Duration `yaml:"cooldown_window" env:"COOLDOWN_WINDOW"`
	MinActive      int           `yaml:"min_active" env:"MIN_ACTIVE"`
}

// RunConfig tunes operation execution.
//
// TransientRetries is at least 1, or -1 to disable transient retries.
type RunConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BatchSize        int           `yaml:"batch_size" env:"BATCH_SIZE"`
	CallTimeout      time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	TransientRetries int           `yaml:"transient_retries" env:"TRANSIENT_RETRIES"`
	DisableProbe     bool          `yaml:"disable_probe" env:"DISABLE_PROBE"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	Model            string        `yaml:"model" env:"MODEL"`
	FallbackModels   []string      `yaml:"fallback_models" env:"FALLBACK_MODELS" envSeparator:","`
	MaxTokens        int           `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// ProvidersConfig configures the upstream clients.
type ProvidersConfig struct {
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	OpenAIModel   string `yaml:"openai_model" env:"OPENAI_MODEL"`
	GeminiBaseURL string `yaml:"gemini_base_url" env:"GEMINI_BASE_URL"`
	GeminiModel   string `yaml:"gemini_model" env:"GEMINI_MODEL"`

	// ProbeModels maps a provider to its probe model, e.g. "openai:gpt-4o-mini".
	ProbeModels map[string]string `yaml:"probe_models" env:"PROBE_MODELS"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "keypool.db",
		},
		Pool: PoolConfig{
			CooldownWindow: 2 * time.Minute,
			MinActive:      5,
		},
		Run: RunConfig{
			MaxAttempts:      3,
			BatchSize:        5,
			CallTimeout:      60 * time.Second,
			TransientRetries: 2,
			ProbeTimeout:     15 * time.Second,
			MaxTokens:        2048,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads the YAML file at path (skipped when empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Pool.CooldownWindow <= 0 {
		return errors.New("pool.cooldown_window must be positive")
	}
	if c.Pool.MinActive < 1 {
		return errors.New("pool.min_active must be at least 1")
	}
	if c.Run.MaxAttempts < 1 {
		return errors.New("run.max_attempts must be at least 1")
	}
	if c.Run.BatchSize < 1 {
		return errors.New("run.batch_size must be at least 1")
	}
	if c.Run.CallTimeout <= 0 {
		return errors.New("run.call_timeout must be positive")
	}
	if c.Run.TransientRetries < 1 && c.Run.TransientRetries != -1 {
		return errors.New("run.transient_retries must be at least 1, or -1 to disable")
	}

	return nil
}

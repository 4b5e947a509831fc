package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keypool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Pool.CooldownWindow)
	assert.Equal(t, 5, cfg.Pool.MinActive)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
database:
  driver: postgres
  dsn: postgres://localhost/keypool
  table: api_keys
pool:
  cooldown_window: 30s
  min_active: 2
run:
  batch_size: 10
  model: gpt-4o-mini
  fallback_models: [gpt-4o]
providers:
  openai_base_url: http://localhost:8000/v1
  probe_models:
    openai: gpt-4o-mini
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "api_keys", cfg.Database.Table)
	assert.Equal(t, 30*time.Second, cfg.Pool.CooldownWindow)
	assert.Equal(t, 2, cfg.Pool.MinActive)
	assert.Equal(t, 10, cfg.Run.BatchSize)
	assert.Equal(t, 3, cfg.Run.MaxAttempts, "unset fields keep defaults")
	assert.Equal(t, []string{"gpt-4o"}, cfg.Run.FallbackModels)
	assert.Equal(t, map[string]string{"openai": "gpt-4o-mini"}, cfg.Providers.ProbeModels)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, `
database:
  driver: sqlite
  dsn: from-file.db
run:
  batch_size: 10
`)
	t.Setenv("KEYPOOL_DB_DSN", "from-env.db")
	t.Setenv("KEYPOOL_RUN_BATCH_SIZE", "7")
	t.Setenv("KEYPOOL_RUN_FALLBACK_MODELS", "a,b")
	t.Setenv("KEYPOOL_POOL_COOLDOWN_WINDOW", "5m")
	t.Setenv("KEYPOOL_PROBE_MODELS", "gemini:gemini-2.0-flash")
	t.Setenv("KEYPOOL_METRICS_ENABLED", "false")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.DSN)
	assert.Equal(t, 7, cfg.Run.BatchSize)
	assert.Equal(t, []string{"a", "b"}, cfg.Run.FallbackModels)
	assert.Equal(t, 5*time.Minute, cfg.Pool.CooldownWindow)
	assert.Equal(t, map[string]string{"gemini": "gemini-2.0-flash"}, cfg.Providers.ProbeModels)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(writeFile(t, "pool:\n  cooldown: 1m\n"))
		assert.Error(t, err)
	})

	t.Run("bad duration in env", func(t *testing.T) {
		t.Setenv("KEYPOOL_RUN_CALL_TIMEOUT", "soon")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		cfg, err := Load(writeFile(t, ""))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})
}

func TestLoad_ZeroMeaningDefaultIsRejected(t *testing.T) {
	t.Run("min_active zero", func(t *testing.T) {
		_, err := Load(writeFile(t, "pool:\n  min_active: 0\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool.min_active")
	})

	t.Run("transient_retries zero", func(t *testing.T) {
		_, err := Load(writeFile(t, "run:\n  transient_retries: 0\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-1 to disable")
	})

	t.Run("transient_retries disabled", func(t *testing.T) {
		cfg, err := Load(writeFile(t, "run:\n  transient_retries: -1\n"))
		require.NoError(t, err)
		assert.Equal(t, -1, cfg.Run.TransientRetries)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "memory needs no dsn", mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMemory} }, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }},
		{name: "missing dsn", mutate: func(c *Config) { c.Database.DSN = " " }},
		{name: "negative cooldown", mutate: func(c *Config) { c.Pool.CooldownWindow = -time.Second }},
		{name: "zero attempts", mutate: func(c *Config) { c.Run.MaxAttempts = 0 }},
		{name: "zero batch", mutate: func(c *Config) { c.Run.BatchSize = 0 }},
		{name: "zero timeout", mutate: func(c *Config) { c.Run.CallTimeout = 0 }},
		{name: "zero cooldown", mutate: func(c *Config) { c.Pool.CooldownWindow = 0 }},
		{name: "zero min active", mutate: func(c *Config) { c.Pool.MinActive = 0 }},
		{name: "one min active", mutate: func(c *Config) { c.Pool.MinActive = 1 }, ok: true},
		{name: "zero transient retries", mutate: func(c *Config) { c.Run.TransientRetries = 0 }},
		{name: "transient retries disabled", mutate: func(c *Config) { c.Run.TransientRetries = -1 }, ok: true},
		{name: "transient retries below -1", mutate: func(c *Config) { c.Run.TransientRetries = -2 }},
		{name: "one transient retry", mutate: func(c *Config) { c.Run.TransientRetries = 1 }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

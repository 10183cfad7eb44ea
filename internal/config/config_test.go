package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, 16, cfg.Engine.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Engine.RunRetention)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := NewLoader().Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_LoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "scrapeflow.yaml")
	content := `
http:
  addr: 127.0.0.1:9000
  trigger_rate: 0.5
engine:
  workers: 4
  run_retention: 90s
history:
  backend: sqlite
  dsn: /tmp/history.db
scraper:
  timeout: 5s
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := NewLoader().Load(configPath)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 0.5, cfg.HTTP.TriggerRate)
	assert.Equal(t, 5, cfg.HTTP.TriggerBurst)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 90*time.Second, cfg.Engine.RunRetention)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, "/tmp/history.db", cfg.History.DSN)
	assert.Equal(t, 5*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)

	lvl, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoader_Load_WithEnvOverride(t *testing.T) {
	t.Setenv("SCRAPEFLOW_HTTP_ADDR", ":9999")
	t.Setenv("SCRAPEFLOW_ENGINE_WORKERS", "2")
	t.Setenv("SCRAPEFLOW_HISTORY_BACKEND", "redis")
	t.Setenv("SCRAPEFLOW_HISTORY_DSN", "redis://localhost:6379/0")

	cfg, err := NewLoader().Load("")

	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, "redis", cfg.History.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.History.DSN)
}

func TestLoader_Load_ConfigPathFromEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "from-env.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  workers: 7\n"), 0o644))
	t.Setenv("SCRAPEFLOW_CONFIG_PATH", configPath)

	cfg, err := NewLoader().Load("")

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.Workers)
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	_, err := NewLoader().Load("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"negative rate", func(c *Config) { c.HTTP.TriggerRate = -1 }, "http.trigger_rate"},
		{"negative workers", func(c *Config) { c.Engine.Workers = -1 }, "engine.workers"},
		{"unknown backend", func(c *Config) { c.History.Backend = "cassandra" }, "history.backend"},
		{"postgres without dsn", func(c *Config) { c.History.Backend = "postgres" }, "history.dsn"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("sqlite without dsn is fine", func(t *testing.T) {
		cfg := Default()
		cfg.History.Backend = "sqlite"
		assert.NoError(t, cfg.Validate())
	})
}

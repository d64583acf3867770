package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-rbac/sentinel/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SENTINEL_DATABASE_URL", "postgres://localhost/sentinel_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 90*24*time.Hour, cfg.Audit.Retention)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_DATABASE_URL", "postgres://localhost/sentinel_test")
	t.Setenv("SENTINEL_PORT", "9999")
	t.Setenv("SENTINEL_LOG_LEVEL", "debug")
	t.Setenv("SENTINEL_DB_MAX_CONNS", "50")
	t.Setenv("SENTINEL_CACHE_TTL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: "7070"
database:
  url: postgres://filehost/sentinel
redis:
  enabled: true
  url: redis://localhost:6379/0
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("SENTINEL_CONFIG_FILE", path)
	// Environment still wins over the file
	t.Setenv("SENTINEL_DATABASE_URL", "postgres://envhost/sentinel")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "postgres://envhost/sentinel", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("SENTINEL_DATABASE_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Database.URL = "postgres://localhost/db"
		return cfg
	}

	t.Run("redis enabled without url", func(t *testing.T) {
		cfg := base()
		cfg.Redis.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("otel enabled without endpoint", func(t *testing.T) {
		cfg := base()
		cfg.Observability.OTelEnabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("max conns below min conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxConns = 1
		cfg.Database.MinConns = 5
		assert.Error(t, cfg.Validate())
	})

	t.Run("port collision", func(t *testing.T) {
		cfg := base()
		cfg.Server.HealthPort = cfg.Server.Port
		assert.Error(t, cfg.Validate())
	})

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}

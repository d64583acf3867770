package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinel-rbac/sentinel/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Audit         AuditConfig         `yaml:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds the optional resolver cache configuration
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// L1Size bounds the in-process cache in entries
	L1Size int `yaml:"l1_size"`
}

// ObservabilityConfig holds logging/metrics/tracing settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
	// SweepSchedule is a cron expression for the retention sweep
	SweepSchedule string `yaml:"sweep_schedule"`
}

// LoadConfig loads configuration from environment variables, optionally
// overlaid with values from the YAML file named by SENTINEL_CONFIG_FILE.
// Environment variables win over file values.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("SENTINEL_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Observability.LogLevel = observability.ParseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:    20,
			MinConns:    2,
			Timeout:     10 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			CacheTTL: 5 * time.Minute,
			L1Size:   1024,
		},
		Observability: ObservabilityConfig{
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelServiceName:    "sentinel",
			OTelServiceVersion: "dev",
		},
		Audit: AuditConfig{
			Enabled:       true,
			Retention:     90 * 24 * time.Hour,
			SweepSchedule: "0 3 * * *",
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SENTINEL_HOST", c.Server.Host)
	c.Server.Port = getEnv("SENTINEL_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("SENTINEL_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("SENTINEL_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SENTINEL_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SENTINEL_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SENTINEL_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("SENTINEL_DATABASE_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("SENTINEL_DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("SENTINEL_DB_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("SENTINEL_DB_TIMEOUT", c.Database.Timeout)
	c.Database.MaxLifetime = getEnvDuration("SENTINEL_DB_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.MaxIdleTime = getEnvDuration("SENTINEL_DB_MAX_IDLE_TIME", c.Database.MaxIdleTime)

	c.Redis.Enabled = getEnvBool("SENTINEL_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.URL = getEnv("SENTINEL_REDIS_URL", c.Redis.URL)
	c.Redis.CacheTTL = getEnvDuration("SENTINEL_CACHE_TTL", c.Redis.CacheTTL)
	c.Redis.L1Size = getEnvInt("SENTINEL_CACHE_L1_SIZE", c.Redis.L1Size)

	c.Observability.LogLevelName = getEnv("SENTINEL_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("SENTINEL_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("SENTINEL_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("SENTINEL_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("SENTINEL_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("SENTINEL_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("SENTINEL_OTEL_INSECURE", c.Observability.OTelInsecure)

	c.Audit.Enabled = getEnvBool("SENTINEL_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.Retention = getEnvDuration("SENTINEL_AUDIT_RETENTION", c.Audit.Retention)
	c.Audit.SweepSchedule = getEnv("SENTINEL_AUDIT_SWEEP_SCHEDULE", c.Audit.SweepSchedule)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (SENTINEL_DATABASE_URL)")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("db max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled")
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("otel endpoint is required when otel is enabled")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must differ")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

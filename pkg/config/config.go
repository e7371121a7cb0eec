package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Cache         CacheConfig         `yaml:"cache"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL pool settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	// Migrate applies the schema on startup
	Migrate bool `yaml:"migrate"`
}

// ConnectionConfig converts to the storage pool configuration
func (d DatabaseConfig) ConnectionConfig() storage.ConnectionConfig {
	return storage.ConnectionConfig{
		URL:         d.URL,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}

// AuthConfig holds session token and tenant header settings
type AuthConfig struct {
	TokenSecret  string        `yaml:"token_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	TenantHeader string        `yaml:"tenant_header"`
}

// Permission cache backends
const (
	CacheBackendLRU   = "lru"
	CacheBackendRedis = "redis"
	CacheBackendNone  = "none"
)

// CacheConfig selects and sizes the permission cache
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	Size          int           `yaml:"size"`
	TTL           time.Duration `yaml:"ttl"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPoolSize int           `yaml:"redis_pool_size"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays of zero keeps events forever
	RetentionDays int `yaml:"retention_days"`
	// RetentionSchedule is a cron expression for the purge job
	RetentionSchedule string `yaml:"retention_schedule"`
	// LogEvents mirrors every audit event to the application log
	LogEvents bool `yaml:"log_events"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string `yaml:"log_level"`
	MetricsEnabled     bool   `yaml:"metrics_enabled"`
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLevel(o.LogLevel)
}

// OTel converts to the tracing configuration
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	pool := storage.DefaultConnectionConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:    pool.MaxConns,
			MinConns:    pool.MinConns,
			Timeout:     pool.Timeout,
			MaxLifetime: pool.MaxLifetime,
			MaxIdleTime: pool.MaxIdleTime,
			Migrate:     true,
		},
		Auth: AuthConfig{
			TokenTTL:     12 * time.Hour,
			TenantHeader: "X-Tenant-ID",
		},
		Cache: CacheConfig{
			Backend:       CacheBackendLRU,
			Size:          10000,
			TTL:           5 * time.Minute,
			RedisPoolSize: 10,
		},
		Audit: AuditConfig{
			Enabled:           true,
			RetentionDays:     365,
			RetentionSchedule: "0 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tenantguard",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file at path
// (skipped when empty), then TENANTGUARD_* environment variables, and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("TENANTGUARD_HOST", s.Host)
	s.Port = getEnv("TENANTGUARD_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TENANTGUARD_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TENANTGUARD_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TENANTGUARD_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TENANTGUARD_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	d := &cfg.Database
	d.URL = getEnv("TENANTGUARD_DATABASE_URL", d.URL)
	d.MaxConns = getEnvInt("TENANTGUARD_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("TENANTGUARD_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("TENANTGUARD_DATABASE_TIMEOUT", d.Timeout)
	d.Migrate = getEnvBool("TENANTGUARD_DATABASE_MIGRATE", d.Migrate)

	a := &cfg.Auth
	a.TokenSecret = getEnv("TENANTGUARD_TOKEN_SECRET", a.TokenSecret)
	a.TokenTTL = getEnvDuration("TENANTGUARD_TOKEN_TTL", a.TokenTTL)
	a.TenantHeader = getEnv("TENANTGUARD_TENANT_HEADER", a.TenantHeader)

	c := &cfg.Cache
	c.Backend = strings.ToLower(getEnv("TENANTGUARD_CACHE_BACKEND", c.Backend))
	c.Size = getEnvInt("TENANTGUARD_CACHE_SIZE", c.Size)
	c.TTL = getEnvDuration("TENANTGUARD_CACHE_TTL", c.TTL)
	c.RedisURL = getEnv("TENANTGUARD_REDIS_URL", c.RedisURL)
	c.RedisPassword = getEnv("TENANTGUARD_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("TENANTGUARD_REDIS_DB", c.RedisDB)
	c.RedisPoolSize = getEnvInt("TENANTGUARD_REDIS_POOL_SIZE", c.RedisPoolSize)

	au := &cfg.Audit
	au.Enabled = getEnvBool("TENANTGUARD_AUDIT_ENABLED", au.Enabled)
	au.RetentionDays = getEnvInt("TENANTGUARD_AUDIT_RETENTION_DAYS", au.RetentionDays)
	au.RetentionSchedule = getEnv("TENANTGUARD_AUDIT_RETENTION_SCHEDULE", au.RetentionSchedule)
	au.LogEvents = getEnvBool("TENANTGUARD_AUDIT_LOG_EVENTS", au.LogEvents)

	o := &cfg.Observability
	o.LogLevel = getEnv("TENANTGUARD_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TENANTGUARD_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TENANTGUARD_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TENANTGUARD_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TENANTGUARD_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TENANTGUARD_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TENANTGUARD_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes")
	}
	if c.Auth.TenantHeader == "" {
		return fmt.Errorf("tenant header name is required")
	}

	switch c.Cache.Backend {
	case CacheBackendLRU:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive for the lru backend")
		}
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	case CacheBackendNone:
	default:
		return fmt.Errorf("invalid cache backend: %s (must be lru, redis, or none)", c.Cache.Backend)
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention days cannot be negative")
	}
	if c.Audit.Enabled && c.Audit.RetentionDays > 0 && c.Audit.RetentionSchedule == "" {
		return fmt.Errorf("audit retention schedule is required when retention is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	pkgconfig "github.com/Uebook/Luna-sub002/pkg/config"
	"github.com/Uebook/Luna-sub002/pkg/database"
	"github.com/Uebook/Luna-sub002/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Storage backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds all configuration for the address service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort int `env:"ADDRESS_HTTP_PORT" envDefault:"8010"`

	// Storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"redis"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Address book TTL in hours, 0 keeps books forever (Redis only).
	BookTTL int `env:"ADDRESS_BOOK_TTL_HOURS" envDefault:"0"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"luna"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"luna_secret"`
	PostgresDB   string `env:"ADDRESS_DB_NAME" envDefault:"luna_addresses"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// SQLite
	SQLitePath string `env:"SQLITE_PATH" envDefault:"luna.db"`

	// Slow storage operations are logged above this threshold, 0 disables.
	SlowQueryMillis int `env:"SLOW_QUERY_MS" envDefault:"200"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"true"`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry string `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// pprof is only mounted for these client networks.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load address config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StorageBackend {
	case BackendRedis:
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			return fmt.Errorf("invalid REDIS_ADDR %q: %w", c.RedisAddr, err)
		}
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of redis, postgres, sqlite, memory, got %q", c.StorageBackend)
	}

	if c.BookTTL < 0 {
		return fmt.Errorf("ADDRESS_BOOK_TTL_HOURS must not be negative, got %d", c.BookTTL)
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_ENABLED is true")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	if _, err := time.ParseDuration(c.JWTAccessExpiry); err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_TOKEN_EXPIRY %q: %w", c.JWTAccessExpiry, err)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}

	return nil
}

// BookTTLDuration returns the Redis TTL of an address book.
func (c *Config) BookTTLDuration() time.Duration {
	return time.Duration(c.BookTTL) * time.Hour
}

// AccessTokenExpiry returns the parsed JWT access token lifetime.
func (c *Config) AccessTokenExpiry() time.Duration {
	d, _ := time.ParseDuration(c.JWTAccessExpiry)
	return d
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	host, portStr, _ := net.SplitHostPort(c.RedisAddr)
	port, _ := strconv.Atoi(portStr)
	return database.RedisConfig{Host: host, Port: port, Password: c.RedisPass, DB: c.RedisDB}
}

// Postgres returns the PostgreSQL connection settings.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	return pg
}

// SlowQueryThreshold returns the slow storage operation threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMillis) * time.Millisecond
}

// Tracing returns the OpenTelemetry settings for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.Enabled = c.OTELEnabled
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	return tc
}

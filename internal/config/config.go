// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Catalog  CatalogConfig
	Run      RunConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds settings for the run report store.
// When URL is empty, reports are kept in memory only.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds the startup connect/ping retries (default: 30s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"30s"`
}

// CatalogConfig holds settings for the remote catalog the runs search and mutate.
type CatalogConfig struct {
	// BaseURL is the catalog API root, e.g. https://tenant.example.com
	BaseURL string `env:"CATALOG_BASE_URL"`

	// APIKey is sent as a bearer token on every catalog call
	APIKey string `env:"CATALOG_API_KEY"`

	// Fixture is a YAML file describing an in-memory catalog, used instead of BaseURL
	Fixture string `env:"CATALOG_FIXTURE"`

	// SearchTimeout bounds a single name lookup (default: 10s)
	SearchTimeout time.Duration `env:"CATALOG_SEARCH_TIMEOUT" default:"10s"`

	// MutateTimeout bounds a single change-set submission (default: 30s)
	MutateTimeout time.Duration `env:"CATALOG_MUTATE_TIMEOUT" default:"30s"`

	// PageSize is the number of search hits requested per page (default: 100)
	PageSize int `env:"CATALOG_PAGE_SIZE" default:"100"`

	// AssetTypes lists the asset types operators may scope a run to
	AssetTypes []string `env:"CATALOG_ASSET_TYPES" default:"Column,Table,View"`
}

// RunConfig holds batch execution settings.
type RunConfig struct {
	// MaxFileSize is the maximum allowed reference file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"RUN_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of batches executing at once (default: 5)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a batch slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT_TIME" default:"30s"`

	// Workers is the number of rows processed concurrently within one batch (default: 1)
	Workers int `env:"RUN_WORKERS" default:"1"`

	// Timeout is the maximum duration of a single batch (default: 30m)
	Timeout time.Duration `env:"RUN_TIMEOUT" default:"30m"`

	// Retention is how long a finished run stays addressable in memory (default: 5m)
	Retention time.Duration `env:"RUN_RETENTION" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key validation on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UsesFixture reports whether runs target the in-memory fixture catalog.
func (c *CatalogConfig) UsesFixture() bool {
	return c.Fixture != ""
}

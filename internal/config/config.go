// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Directory DirectoryConfig
	Import    ImportConfig
	Inventory InventoryConfig
	Rate      RateLimitConfig
	Logging   LoggingConfig
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

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings. Only consulted when
// INVENTORY_DRIVER is "postgres".
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// DirectoryConfig holds directory service client settings.
type DirectoryConfig struct {
	// BaseURL is the directory service endpoint (required)
	BaseURL string `env:"DIRECTORY_BASE_URL" required:"true"`

	// Token is the bearer token for directory API calls
	Token string `env:"DIRECTORY_TOKEN"`

	// Timeout is the per-request timeout for directory calls (default: 10s)
	Timeout time.Duration `env:"DIRECTORY_TIMEOUT" default:"10s"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// MaxConcurrent is the maximum number of parallel imports (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// WaitCeiling is the wall-clock bound on synchronous result waits (default: 5m)
	WaitCeiling time.Duration `env:"IMPORT_WAIT_CEILING" default:"5m"`

	// MaxRows is the maximum rows accepted in one submission (default: 50000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"50000"`
}

// InventoryConfig selects the inventory storage backend.
type InventoryConfig struct {
	// Driver is the storage backend: "postgres" or "memory" (default: postgres)
	Driver string `env:"INVENTORY_DRIVER" default:"postgres"`

	// SessionRetentionDays is how long finished import session audit rows
	// are kept before the retention sweeper purges them (default: 90)
	SessionRetentionDays int `env:"SESSION_RETENTION_DAYS" default:"90"`

	// RetentionSweepInterval is how often the sweeper runs (default: 24h)
	RetentionSweepInterval time.Duration `env:"SESSION_RETENTION_SWEEP_INTERVAL" default:"24h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
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
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}

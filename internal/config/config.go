package config

import "time"

// Config represents the complete application configuration. Values are
// layered: built-in defaults, then the config file, then GREATER_*
// environment variables, then command-line flags.
type Config struct {
	Instance  string          `mapstructure:"instance"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Client    ClientConfig    `mapstructure:"client"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Offline   OfflineConfig   `mapstructure:"offline"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains the local compose gateway configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ClientConfig tunes the request pipeline.
type ClientConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	UserAgent string        `mapstructure:"user_agent"`
	// Validate enables response shape checks. Mismatches are only logged.
	Validate bool `mapstructure:"validate"`
}

// RateLimitConfig is the local request quota. The defaults are an
// estimate of the remote limit, not a value published by servers.
type RateLimitConfig struct {
	MaxRequests    int           `mapstructure:"max_requests"`
	Window         time.Duration `mapstructure:"window"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	// Persist keeps limiter state in the store across runs.
	Persist bool `mapstructure:"persist"`
}

// StreamConfig contains real-time streaming settings.
type StreamConfig struct {
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
}

// OfflineConfig contains offline queue settings.
type OfflineConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the gateway log format: structured (JSON, the
	// default) or simple (console text)
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

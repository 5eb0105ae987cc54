package config

import "time"

// Config is the root configuration for a livesync client.
type Config struct {
	Channel     ChannelConfig     `yaml:"channel"`
	API         APIConfig         `yaml:"api"`
	Polling     PollingConfig     `yaml:"polling"`
	Pagination  PaginationConfig  `yaml:"pagination"`
	Session     SessionConfig     `yaml:"session"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
}

// ChannelConfig holds push channel settings.
type ChannelConfig struct {
	URL                  string        `yaml:"url"`
	Reconnect            *bool         `yaml:"reconnect"` // nil means enabled
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts *int          `yaml:"max_reconnect_attempts"` // nil means the default
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// ReconnectEnabled reports whether automatic reconnection is on.
func (c ChannelConfig) ReconnectEnabled() bool {
	return c.Reconnect == nil || *c.Reconnect
}

// ReconnectAttempts returns the automatic reconnect budget. An explicit 0
// never reconnects.
func (c ChannelConfig) ReconnectAttempts() int {
	if c.MaxReconnectAttempts == nil {
		return DefaultMaxReconnectAttempts
	}
	return *c.MaxReconnectAttempts
}

// APIConfig holds remote API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // nil means the default

	// Client-side rate limit; zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// Circuit breaker; zero failures disables it.
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// Retries returns how many times a failed GET is retried. An explicit 0
// sends each request once.
func (c APIConfig) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// PollingConfig holds polling fallback settings.
type PollingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Immediate     *bool         `yaml:"immediate"` // nil means fetch on start
	PreferenceKey string        `yaml:"preference_key"`
}

// ImmediateEnabled reports whether pollers fetch on start.
func (c PollingConfig) ImmediateEnabled() bool {
	return c.Immediate == nil || *c.Immediate
}

// PaginationConfig holds paginated list settings.
type PaginationConfig struct {
	PageSize int `yaml:"page_size"`
}

// SessionConfig selects where the credential pair is persisted.
type SessionConfig struct {
	Store    string        `yaml:"store"` // "file", "redis" or "memory"
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redis_url"`
	RedisKey string        `yaml:"redis_key"`
	TTL      time.Duration `yaml:"ttl"`
}

// PreferencesConfig selects the stored preference backend.
type PreferencesConfig struct {
	Store    string   `yaml:"store"` // "memory" or "postgres"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// ServerConfig holds the local status server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

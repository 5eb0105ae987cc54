package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultBreakerTimeout       = 30 * time.Second
	DefaultPollInterval         = 30 * time.Second
	DefaultPreferenceKey        = "poll_interval"
	DefaultPageSize             = 20
	DefaultSessionStore         = "file"
	DefaultSessionPath          = ".livesync/session.json"
	DefaultRedisKey             = "livesync:session"
	DefaultPreferencesStore     = "memory"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultServerPort           = 9090
	DefaultMetricsPath          = "/metrics"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	// Channel defaults
	if c.Channel.ReconnectInterval == 0 {
		c.Channel.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Channel.HeartbeatInterval == 0 {
		c.Channel.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Channel.WriteTimeout == 0 {
		c.Channel.WriteTimeout = DefaultWriteTimeout
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.BreakerFailures > 0 && c.API.BreakerTimeout == 0 {
		c.API.BreakerTimeout = DefaultBreakerTimeout
	}
	if c.API.RateLimit > 0 && c.API.RateBurst == 0 {
		c.API.RateBurst = 1
	}

	// Polling defaults
	if c.Polling.Interval == 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.PreferenceKey == "" {
		c.Polling.PreferenceKey = DefaultPreferenceKey
	}

	if c.Pagination.PageSize == 0 {
		c.Pagination.PageSize = DefaultPageSize
	}

	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = DefaultSessionStore
	}
	if c.Session.Store == "file" && c.Session.Path == "" {
		c.Session.Path = DefaultSessionPath
	}
	if c.Session.RedisKey == "" {
		c.Session.RedisKey = DefaultRedisKey
	}

	// Preferences defaults
	if c.Preferences.Store == "" {
		c.Preferences.Store = DefaultPreferencesStore
	}
	if c.Preferences.Store == "postgres" {
		applyDBDefaults(&c.Preferences.Postgres)
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

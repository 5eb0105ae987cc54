package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Channel.URL == "" {
		return errors.New("channel.url is required")
	}
	if u, err := url.Parse(c.Channel.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("channel.url must be a ws:// or wss:// url, got %q", c.Channel.URL)
	}
	if c.Channel.ReconnectInterval <= 0 {
		return errors.New("channel.reconnect_interval must be > 0")
	}
	if c.Channel.ReconnectAttempts() < 0 {
		return errors.New("channel.max_reconnect_attempts must be >= 0")
	}
	if c.Channel.HeartbeatInterval <= 0 {
		return errors.New("channel.heartbeat_interval must be > 0")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url must be an http:// or https:// url, got %q", c.API.BaseURL)
	}
	if c.API.Retries() < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if c.Polling.Interval <= 0 {
		return errors.New("polling.interval must be > 0")
	}
	if c.Pagination.PageSize < 1 {
		return errors.New("pagination.page_size must be >= 1")
	}

	switch c.Session.Store {
	case "memory":
	case "file":
		if c.Session.Path == "" {
			return errors.New("session.path is required when session.store is file")
		}
	case "redis":
		if c.Session.RedisURL == "" {
			return errors.New("session.redis_url is required when session.store is redis")
		}
	default:
		return fmt.Errorf("session.store must be one of file, redis, memory, got %q", c.Session.Store)
	}

	switch c.Preferences.Store {
	case "memory":
	case "postgres":
		if err := c.Preferences.Postgres.validate("preferences.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("preferences.store must be one of memory, postgres, got %q", c.Preferences.Store)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/livesync/internal/api"
	"github.com/rickgao/livesync/internal/config"
	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/database"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/model"
	"github.com/rickgao/livesync/internal/poller"
	"github.com/rickgao/livesync/internal/prefs"
	"github.com/rickgao/livesync/internal/session"
)

const retryBackoff = time.Second

// cleanup collects release funcs and runs them in reverse order.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger, done *cleanup) (session.Store, error) {
	switch cfg.Store {
	case "memory":
		return &session.MemoryStore{}, nil
	case "redis":
		rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect session redis: %w", err)
		}
		done.add(func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("close session redis", "error", err)
			}
		})
		return session.NewRedisStore(rdb, cfg.RedisKey, cfg.TTL), nil
	default:
		return session.NewFileStore(cfg.Path), nil
	}
}

func newPreferences(ctx context.Context, cfg config.PreferencesConfig, logger *slog.Logger, done *cleanup) (prefs.Store, error) {
	if cfg.Store != "postgres" {
		return prefs.NewMemoryStore(), nil
	}

	logger.Info("connecting to preferences database",
		"host", cfg.Postgres.Host,
		"port", cfg.Postgres.Port,
		"database", cfg.Postgres.Name,
	)
	pool, err := database.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect preferences database: %w", err)
	}
	done.add(pool.Close)

	store := prefs.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prepare preferences schema: %w", err)
	}
	return store, nil
}

// newSession wires the session manager and API client to each other: the
// client authenticates with the session, and refreshes go through the client.
func newSession(store session.Store, cfg config.APIConfig, m *metrics.APIMetrics, logger *slog.Logger) (*session.Manager, *api.Client) {
	var client *api.Client
	refresh := func(ctx context.Context, refreshToken string) (model.Credentials, error) {
		return client.RefreshCredentials(ctx, refreshToken)
	}
	sess := session.NewManager(store, refresh, logger.With("component", "session"))

	opts := []api.ClientOption{
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.Timeout),
		api.WithRetries(cfg.Retries(), retryBackoff),
		api.WithSession(sess),
		api.WithMetrics(m),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, api.WithCircuitBreaker(cfg.BreakerFailures, cfg.BreakerTimeout))
	}
	client = api.NewClient(cfg.BaseURL, opts...)

	return sess, client
}

func connectionConfig(cfg config.ChannelConfig) connection.Config {
	c := connection.DefaultConfig()
	c.URL = cfg.URL
	c.Reconnect = cfg.ReconnectEnabled()
	c.ReconnectInterval = cfg.ReconnectInterval
	c.MaxReconnectAttempts = cfg.ReconnectAttempts()
	c.HeartbeatInterval = cfg.HeartbeatInterval
	c.WriteTimeout = cfg.WriteTimeout
	return c
}

func pollConfig(name string, cfg config.PollingConfig) poller.Config {
	return poller.Config{
		Name:          name,
		Interval:      cfg.Interval,
		Immediate:     cfg.ImmediateEnabled(),
		Enabled:       true,
		PreferenceKey: cfg.PreferenceKey,
	}
}

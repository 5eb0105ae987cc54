package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livesync/internal/api"
	"github.com/rickgao/livesync/internal/config"
	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/feed"
	"github.com/rickgao/livesync/internal/logging"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/model"
	"github.com/rickgao/livesync/internal/pagination"
	"github.com/rickgao/livesync/internal/poller"
	"github.com/rickgao/livesync/internal/request"
	"github.com/rickgao/livesync/internal/router"
	"github.com/rickgao/livesync/internal/server"
	"github.com/rickgao/livesync/internal/session"
	"github.com/rickgao/livesync/internal/version"
)

const shutdownTimeout = 10 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the push channel and serve live state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
			logger.Info("starting livesync",
				"version", version.Version,
				"commit", version.Commit,
				"config", opts.ConfigPath,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			return a.run(ctx)
		},
	}
}

// app is the wired component graph of a running client.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	done   cleanup

	registry      *prometheus.Registry
	session       *session.Manager
	client        *api.Client
	conn          *connection.Manager
	router        *router.Router
	dashboard     *feed.Dashboard
	notifications *feed.Notifications
	activities    *pagination.Accumulator[model.Activity]
	server        *server.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: metrics.NewRegistry()}
	done := &a.done
	defer func() {
		if err != nil {
			done.run()
		}
	}()

	set := metrics.NewSet(a.registry)

	store, err := newSessionStore(ctx, cfg.Session, logger, &a.done)
	if err != nil {
		return nil, err
	}
	a.session, a.client = newSession(store, cfg.API, set.API, logger)

	preferences, err := newPreferences(ctx, cfg.Preferences, logger, &a.done)
	if err != nil {
		return nil, err
	}

	a.conn = connection.NewManager(connectionConfig(cfg.Channel),
		connection.WithLogger(logger),
		connection.WithMetrics(set.Connection),
		connection.WithTokenSource(a.session),
		connection.OnStateChange(func(from, to connection.State) {
			logger.Info("push channel state", "from", from, "to", to)
		}),
	)
	a.done.add(a.conn.Close)

	a.router = router.NewRouter(a.conn.Messages(),
		router.WithLogger(logger),
		router.WithMetrics(set.Router),
	)

	feedOpts := []feed.Option{
		feed.WithLogger(logger),
		feed.WithPollerOptions(
			poller.WithMetrics(set.Poller),
			poller.WithPreferences(preferences),
		),
	}

	dcfg := feed.DefaultDashboardConfig()
	dcfg.Poll = pollConfig("dashboard", cfg.Polling)
	a.dashboard, err = feed.NewDashboard(a.router, a.client, dcfg, feedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create dashboard: %w", err)
	}
	a.done.add(a.dashboard.Close)

	ncfg := feed.DefaultNotificationsConfig()
	ncfg.Poll = pollConfig("notifications", cfg.Polling)
	a.notifications, err = feed.NewNotifications(a.router, a.client, ncfg, feedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create notifications: %w", err)
	}
	a.done.add(a.notifications.Close)

	a.activities = pagination.New(a.client.ListActivities,
		pagination.WithPageSize(cfg.Pagination.PageSize),
		pagination.WithRequestOptions(
			request.WithName("activities"),
			request.WithLogger(logger),
			request.WithMetrics(set.Request),
		),
	)
	a.done.add(a.activities.Close)

	a.server = server.New(server.Deps{
		Connection:    a.conn,
		Router:        a.router,
		Dashboard:     a.dashboard,
		Notifications: a.notifications,
		Activities:    a.activities,
		Gatherer:      a.registry,
		MetricsPath:   cfg.Server.MetricsPath,
	}, logger)

	return a, nil
}

// run starts every component and blocks until ctx ends or the status
// server fails.
func (a *app) run(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		a.logger.Warn("continuing without a persisted session", "error", err)
	}
	if !a.session.Authenticated() {
		a.logger.Warn("no session; run `livesync login` for authenticated views")
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := a.router.Start(gctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	a.conn.Connect()

	if err := a.dashboard.Start(gctx); err != nil {
		return fmt.Errorf("start dashboard polling: %w", err)
	}
	if err := a.notifications.Start(gctx); err != nil {
		return fmt.Errorf("start notification polling: %w", err)
	}

	g.Go(func() error {
		if err := a.activities.Load(gctx); err != nil && !errors.Is(err, request.ErrSuperseded) {
			a.logger.Warn("initial activity load failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.server.Start(a.cfg.Server.Port)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("status server shutdown", "error", err)
		}
		return nil
	})

	a.logger.Info("livesync running",
		"channel", a.cfg.Channel.URL,
		"status_url", fmt.Sprintf("http://localhost:%d/health", a.cfg.Server.Port),
	)

	err := g.Wait()
	a.logger.Info("shutting down")
	return err
}

func (a *app) close() {
	a.done.run()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.router.Stop(ctx); err != nil {
		a.logger.Warn("router stop", "error", err)
	}
	a.logger.Info("livesync stopped")
}

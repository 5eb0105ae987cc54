package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/feed"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/model"
	"github.com/rickgao/livesync/internal/pagination"
	"github.com/rickgao/livesync/internal/router"
)

// ConnectionStatus reports push channel state.
type ConnectionStatus interface {
	State() connection.State
	Attempts() int
}

// RouterStatus reports event routing counters.
type RouterStatus interface {
	Stats() router.RouterStats
}

// Dashboard is the dashboard view served on /dashboard.
type Dashboard interface {
	Snapshot() feed.DashboardSnapshot
	Refresh(ctx context.Context) (model.Metrics, error)
}

// Notifications is the notifications view served on /notifications.
type Notifications interface {
	Snapshot() feed.NotificationsSnapshot
	MarkRead(ctx context.Context, id string) error
}

// ActivityList is the paginated activity list served on /activities.
type ActivityList interface {
	State() pagination.State[model.Activity]
	LoadMore(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Deps are the components the server reads. Nil views are not routed.
type Deps struct {
	Connection    ConnectionStatus
	Router        RouterStatus
	Dashboard     Dashboard
	Notifications Notifications
	Activities    ActivityList
	Gatherer      prometheus.Gatherer
	MetricsPath   string
}

// Server is the status HTTP server.
type Server struct {
	echo      *echo.Echo
	deps      Deps
	logger    *slog.Logger
	startTime time.Time
}

// New builds a Server with its routes registered.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:      e,
		deps:      deps,
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	if s.deps.Gatherer != nil {
		s.echo.GET(s.deps.MetricsPath, echo.WrapHandler(metrics.Handler(s.deps.Gatherer)))
	}
	if s.deps.Dashboard != nil {
		s.echo.GET("/dashboard", s.handleDashboard)
		s.echo.POST("/dashboard/refresh", s.handleDashboardRefresh)
	}
	if s.deps.Notifications != nil {
		s.echo.GET("/notifications", s.handleNotifications)
		s.echo.POST("/notifications/:id/read", s.handleMarkRead)
	}
	if s.deps.Activities != nil {
		s.echo.GET("/activities", s.handleActivities)
		s.echo.POST("/activities/more", s.handleActivitiesMore)
		s.echo.POST("/activities/refresh", s.handleActivitiesRefresh)
	}
}

// ServeHTTP lets tests drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on port until Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("starting status server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rickgao/livesync/internal/api"
	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/model"
)

const actionTimeout = 10 * time.Second

type healthResponse struct {
	Status     string         `json:"status"`
	Uptime     float64        `json:"uptime"`
	Components map[string]any `json:"components"`
}

func (s *Server) handleHealth(c echo.Context) error {
	health := healthResponse{
		Status:     "healthy",
		Uptime:     time.Since(s.startTime).Seconds(),
		Components: make(map[string]any),
	}

	if s.deps.Connection != nil {
		state := s.deps.Connection.State()
		health.Components["channel"] = map[string]any{
			"state":    state,
			"attempts": s.deps.Connection.Attempts(),
		}
		if state != connection.StateConnected {
			health.Status = "degraded"
		}
	}
	if s.deps.Router != nil {
		health.Components["router"] = s.deps.Router.Stats()
	}

	return c.JSON(http.StatusOK, health)
}

func (s *Server) handleDashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Dashboard.Snapshot())
}

func (s *Server) handleDashboardRefresh(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), actionTimeout)
	defer cancel()

	if _, err := s.deps.Dashboard.Refresh(ctx); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.deps.Dashboard.Snapshot())
}

func (s *Server) handleNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Notifications.Snapshot())
}

func (s *Server) handleMarkRead(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), actionTimeout)
	defer cancel()

	if err := s.deps.Notifications.MarkRead(ctx, id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.deps.Notifications.Snapshot())
}

type activitiesResponse struct {
	Items       []model.Activity `json:"items"`
	CurrentPage int              `json:"current_page"`
	HasMore     bool             `json:"has_more"`
	TotalCount  int              `json:"total_count"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
}

func (s *Server) activities() activitiesResponse {
	st := s.deps.Activities.State()
	resp := activitiesResponse{
		Items:       st.Items,
		CurrentPage: st.CurrentPage,
		HasMore:     st.HasMore,
		TotalCount:  st.TotalCount,
		Loading:     st.Loading,
	}
	if resp.Items == nil {
		resp.Items = []model.Activity{}
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

func (s *Server) handleActivities(c echo.Context) error {
	return c.JSON(http.StatusOK, s.activities())
}

func (s *Server) handleActivitiesMore(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), actionTimeout)
	defer cancel()

	if err := s.deps.Activities.LoadMore(ctx); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.activities())
}

func (s *Server) handleActivitiesRefresh(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), actionTimeout)
	defer cancel()

	if err := s.deps.Activities.Refresh(ctx); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.activities())
}

// fail maps an upstream error onto a response status.
func (s *Server) fail(c echo.Context, err error) error {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, api.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, api.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.logger.Warn("request failed", "path", c.Path(), "status", status, "error", err)
	return c.JSON(status, map[string]string{"error": err.Error()})
}

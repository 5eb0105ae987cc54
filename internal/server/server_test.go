package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/livesync/internal/api"
	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/feed"
	"github.com/rickgao/livesync/internal/model"
	"github.com/rickgao/livesync/internal/pagination"
	"github.com/rickgao/livesync/internal/router"
)

type mockConnection struct {
	state    connection.State
	attempts int
}

func (m *mockConnection) State() connection.State { return m.state }
func (m *mockConnection) Attempts() int           { return m.attempts }

type mockRouter struct{ stats router.RouterStats }

func (m *mockRouter) Stats() router.RouterStats { return m.stats }

type mockDashboard struct {
	snap       feed.DashboardSnapshot
	refreshErr error
	refreshes  int
}

func (m *mockDashboard) Snapshot() feed.DashboardSnapshot { return m.snap }
func (m *mockDashboard) Refresh(context.Context) (model.Metrics, error) {
	m.refreshes++
	return m.snap.Metrics, m.refreshErr
}

type mockNotifications struct {
	snap    feed.NotificationsSnapshot
	markErr error
	marked  []string
}

func (m *mockNotifications) Snapshot() feed.NotificationsSnapshot { return m.snap }
func (m *mockNotifications) MarkRead(_ context.Context, id string) error {
	m.marked = append(m.marked, id)
	return m.markErr
}

type mockActivities struct {
	state     pagination.State[model.Activity]
	loadMores int
	refreshes int
}

func (m *mockActivities) State() pagination.State[model.Activity] { return m.state }
func (m *mockActivities) LoadMore(context.Context) error {
	m.loadMores++
	return nil
}
func (m *mockActivities) Refresh(context.Context) error {
	m.refreshes++
	return nil
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth_Connected(t *testing.T) {
	s := New(Deps{
		Connection: &mockConnection{state: connection.StateConnected},
		Router:     &mockRouter{stats: router.RouterStats{MessagesReceived: 3}},
	}, nil)

	rec := do(t, s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	channel := body["components"].(map[string]any)["channel"].(map[string]any)
	assert.Equal(t, "connected", channel["state"])
}

func TestHealth_DegradedWhileDisconnected(t *testing.T) {
	s := New(Deps{Connection: &mockConnection{state: connection.StateError, attempts: 2}}, nil)

	rec := do(t, s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"attempts":2`)
}

func TestDashboard(t *testing.T) {
	d := &mockDashboard{snap: feed.DashboardSnapshot{
		Metrics: model.Metrics{"totalUsers": 150.0},
		Alerts:  []model.Alert{{ID: "a1", Title: "disk"}},
	}}
	s := New(Deps{Dashboard: d}, nil)

	rec := do(t, s, http.MethodGet, "/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalUsers":150`)
	assert.Contains(t, rec.Body.String(), `"id":"a1"`)

	rec = do(t, s, http.MethodPost, "/dashboard/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, d.refreshes)
}

func TestDashboardRefresh_UpstreamFailure(t *testing.T) {
	d := &mockDashboard{refreshErr: fmt.Errorf("refresh dashboard: %w", &api.RequestError{Kind: api.KindServer, StatusCode: 503})}
	s := New(Deps{Dashboard: d}, nil)

	rec := do(t, s, http.MethodPost, "/dashboard/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMarkRead(t *testing.T) {
	n := &mockNotifications{snap: feed.NotificationsSnapshot{Unread: 1}}
	s := New(Deps{Notifications: n}, nil)

	rec := do(t, s, http.MethodPost, "/notifications/n1/read")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"n1"}, n.marked)
	assert.Contains(t, rec.Body.String(), `"unread":1`)
}

func TestMarkRead_Unauthorized(t *testing.T) {
	n := &mockNotifications{markErr: fmt.Errorf("mark notification n1 read: %w", &api.RequestError{Kind: api.KindAuth, StatusCode: 401})}
	s := New(Deps{Notifications: n}, nil)

	rec := do(t, s, http.MethodPost, "/notifications/n1/read")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivities(t *testing.T) {
	a := &mockActivities{state: pagination.State[model.Activity]{
		Items:       []model.Activity{{ID: "x", Kind: "login"}},
		CurrentPage: 1,
		HasMore:     true,
	}}
	s := New(Deps{Activities: a}, nil)

	rec := do(t, s, http.MethodGet, "/activities")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_more":true`)

	do(t, s, http.MethodPost, "/activities/more")
	do(t, s, http.MethodPost, "/activities/refresh")
	assert.Equal(t, 1, a.loadMores)
	assert.Equal(t, 1, a.refreshes)
}

func TestActivities_EmptyListIsArray(t *testing.T) {
	s := New(Deps{Activities: &mockActivities{}}, nil)

	rec := do(t, s, http.MethodGet, "/activities")
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "livesync_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Deps{Gatherer: reg, MetricsPath: "/metrics"}, nil)

	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livesync_test_total 1")
}

func TestUnconfiguredViewsNotRouted(t *testing.T) {
	s := New(Deps{}, nil)

	rec := do(t, s, http.MethodGet, "/dashboard")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

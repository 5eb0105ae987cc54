package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/livesync/internal/model"
	"github.com/rickgao/livesync/internal/poller"
	"github.com/rickgao/livesync/internal/router"
)

// DashboardSource fetches authoritative dashboard metrics.
type DashboardSource interface {
	GetDashboardMetrics(ctx context.Context) (model.Metrics, error)
}

// DashboardConfig holds dashboard settings.
type DashboardConfig struct {
	Poll          poller.Config
	AlertLimit    int
	ActivityLimit int
}

// DefaultDashboardConfig returns the default caps and a 30s fallback poll.
func DefaultDashboardConfig() DashboardConfig {
	poll := poller.DefaultConfig()
	poll.Name = "dashboard"
	return DashboardConfig{
		Poll:          poll,
		AlertLimit:    DefaultAlertLimit,
		ActivityLimit: DefaultActivityLimit,
	}
}

// DashboardSnapshot is a point-in-time view of the dashboard.
type DashboardSnapshot struct {
	Metrics    model.Metrics    `json:"metrics"`
	Alerts     []model.Alert    `json:"alerts"`
	Activities []model.Activity `json:"activities"`
	LastPoll   time.Time        `json:"last_poll,omitzero"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
}

// Dashboard combines live metric, alert and activity events with a polled
// metrics fallback.
type Dashboard struct {
	settings
	metrics    *router.Registration
	alerts     *Bounded[model.Alert]
	activities *Bounded[model.Activity]
	regs       []*router.Registration
	poller     *poller.Poller[model.Metrics]
}

// NewDashboard registers the dashboard on r. The poller is created stopped;
// call Start to begin polling.
func NewDashboard(r *router.Router, src DashboardSource, cfg DashboardConfig, opts ...Option) (*Dashboard, error) {
	def := DefaultDashboardConfig()
	if cfg.AlertLimit <= 0 {
		cfg.AlertLimit = def.AlertLimit
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = def.ActivityLimit
	}
	if cfg.Poll.Name == "" {
		cfg.Poll.Name = def.Poll.Name
	}

	d := &Dashboard{
		settings:   newSettings("dashboard", opts),
		alerts:     NewBounded[model.Alert](cfg.AlertLimit),
		activities: NewBounded[model.Activity](cfg.ActivityLimit),
	}

	var err error
	d.metrics, err = r.Register([]string{EventDashboardUpdate}, nil,
		router.WithTransform(decodePatch(d)),
		router.WithInitialState(map[string]any{}),
	)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", EventDashboardUpdate, err)
	}
	d.regs = append(d.regs, d.metrics)

	alerts, err := r.Register([]string{EventAlert}, func(_ any, ev router.Event) { d.onAlert(ev) })
	if err != nil {
		d.unsubscribe()
		return nil, fmt.Errorf("register %s: %w", EventAlert, err)
	}
	d.regs = append(d.regs, alerts)

	activities, err := r.Register([]string{EventActivity}, func(_ any, ev router.Event) { d.onActivity(ev) })
	if err != nil {
		d.unsubscribe()
		return nil, fmt.Errorf("register %s: %w", EventActivity, err)
	}
	d.regs = append(d.regs, activities)

	d.poller = poller.New(src.GetDashboardMetrics, cfg.Poll, d.pollOpts...)
	d.poller.OnData(func(m model.Metrics) {
		d.metrics.SetState(map[string]any(m.Clone()))
	})

	return d, nil
}

// decodePatch turns a dashboard_update payload into a merge patch. Non-object
// payloads produce an empty patch.
func decodePatch(d *Dashboard) router.TransformFunc {
	return func(ev router.Event) map[string]any {
		var patch map[string]any
		if err := ev.Decode(&patch); err != nil {
			d.logger.Warn("dashboard update is not an object", "error", err)
			return nil
		}
		return patch
	}
}

func (d *Dashboard) onAlert(ev router.Event) {
	var a model.Alert
	if err := ev.Decode(&a); err != nil {
		d.logger.Warn("dropping undecodable alert", "error", err)
		return
	}
	a.ID = itemID(a.ID, ev)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ev.Timestamp
	}
	d.alerts.Push(a)
}

func (d *Dashboard) onActivity(ev router.Event) {
	var a model.Activity
	if err := ev.Decode(&a); err != nil {
		d.logger.Warn("dropping undecodable activity", "error", err)
		return
	}
	a.ID = itemID(a.ID, ev)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ev.Timestamp
	}
	d.activities.Push(a)
}

// itemID prefers the payload id, then the envelope id, then a fresh one.
func itemID(id string, ev router.Event) string {
	if id != "" {
		return id
	}
	if ev.ID != "" {
		return ev.ID
	}
	return model.NewID()
}

// Start begins fallback polling.
func (d *Dashboard) Start(ctx context.Context) error {
	return d.poller.Start(ctx)
}

// Refresh polls once now.
func (d *Dashboard) Refresh(ctx context.Context) (model.Metrics, error) {
	m, err := d.poller.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh dashboard: %w", err)
	}
	return m, nil
}

// Poller exposes the fallback poller for interval and enable control.
func (d *Dashboard) Poller() *poller.Poller[model.Metrics] {
	return d.poller
}

// Metrics returns a copy of the current metric set.
func (d *Dashboard) Metrics() model.Metrics {
	m, _ := d.metrics.State().(map[string]any)
	return model.Metrics(m).Clone()
}

// Alerts returns the alert feed, newest first.
func (d *Dashboard) Alerts() []model.Alert {
	return d.alerts.Items()
}

// Activities returns the activity feed, newest first.
func (d *Dashboard) Activities() []model.Activity {
	return d.activities.Items()
}

// Snapshot returns the whole dashboard view.
func (d *Dashboard) Snapshot() DashboardSnapshot {
	st := d.poller.State()
	snap := DashboardSnapshot{
		Metrics:    d.Metrics(),
		Alerts:     d.Alerts(),
		Activities: d.Activities(),
		LastPoll:   st.LastUpdate,
		Loading:    st.Loading,
	}
	if st.Err != nil {
		snap.Error = st.Err.Error()
	}
	return snap
}

// Close unsubscribes from the router and stops polling.
func (d *Dashboard) Close() {
	d.unsubscribe()
	d.poller.Close()
}

func (d *Dashboard) unsubscribe() {
	for _, reg := range d.regs {
		reg.Unsubscribe()
	}
}

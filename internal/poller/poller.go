package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/prefs"
)

// ErrClosed is returned by Start and Refresh after Close.
var ErrClosed = errors.New("poller closed")

// FetchFunc retrieves one snapshot.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Config holds poller configuration.
type Config struct {
	Name          string        // Label for logs and metrics
	Interval      time.Duration // Poll interval (default: 30s)
	Immediate     bool          // Fetch once as soon as polling starts
	Enabled       bool          // Start is a no-op while disabled
	PreferenceKey string        // Stored preference overriding Interval
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:      "poller",
		Interval:  30 * time.Second,
		Immediate: true,
		Enabled:   true,
	}
}

// State is a snapshot of the poller.
type State[T any] struct {
	Data       T
	HasData    bool
	Loading    bool
	Err        error
	LastUpdate time.Time
}

// Option configures a Poller.
type Option func(*settings)

type settings struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.PollerMetrics
	prefs   prefs.Store
}

// WithClock sets the clock driving the poll timer.
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.PollerMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithPreferences reads Config.PreferenceKey from store on Start.
func WithPreferences(store prefs.Store) Option {
	return func(s *settings) { s.prefs = store }
}

// loop is one running timer.
type loop struct {
	ticker clockwork.Ticker
	stop   chan struct{}
}

// Poller periodically fetches a snapshot.
type Poller[T any] struct {
	fetch FetchFunc[T]
	cfg   Config
	settings

	wg sync.WaitGroup

	mu        sync.Mutex
	enabled   bool
	interval  time.Duration
	override  bool // SetInterval was called; preferences are no longer consulted
	loop      *loop
	runCtx    context.Context
	runCancel context.CancelFunc
	inflight  int
	closed    bool
	state     State[T]
	onData    func(T)
	onError   func(error)
}

// New creates a stopped Poller.
func New[T any](fetch FetchFunc[T], cfg Config, opts ...Option) *Poller[T] {
	s := settings{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&s)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "poller", "poller", cfg.Name)

	return &Poller[T]{
		fetch:    fetch,
		cfg:      cfg,
		settings: s,
		enabled:  cfg.Enabled,
		interval: cfg.Interval,
	}
}

// OnData sets the callback fired after each successful fetch.
func (p *Poller[T]) OnData(fn func(T)) {
	p.mu.Lock()
	p.onData = fn
	p.mu.Unlock()
}

// OnError sets the callback fired after each failed fetch.
func (p *Poller[T]) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Start begins polling. Starting while already polling replaces the
// running timer. Start is a no-op while disabled.
func (p *Poller[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.enabled {
		p.mu.Unlock()
		p.logger.Debug("polling disabled, not starting")
		return nil
	}
	override := p.override
	p.mu.Unlock()

	interval := p.resolveInterval(ctx, override)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.enabled {
		return nil
	}
	p.stopLocked()

	p.interval = interval
	p.runCtx, p.runCancel = context.WithCancel(ctx)
	p.startLoopLocked(p.cfg.Immediate)

	p.logger.Info("polling started", "interval", interval, "immediate", p.cfg.Immediate)
	return nil
}

// Stop halts polling and cancels in-flight fetches. It is idempotent and
// waits for the loop to exit or ctx to end.
func (p *Poller[T]) Stop(ctx context.Context) error {
	p.mu.Lock()
	wasRunning := p.loop != nil
	p.stopLocked()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if wasRunning {
			p.logger.Info("polling stopped")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetEnabled turns polling on or off.
func (p *Poller[T]) SetEnabled(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()

	if enabled {
		return p.Start(ctx)
	}
	return p.Stop(ctx)
}

// SetInterval changes the poll interval. A running timer is torn down and
// restarted at once with the new period; no fetch is made on restart.
func (p *Poller[T]) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	p.override = true
	if p.runningLocked() {
		p.stopLoopLocked()
		p.startLoopLocked(false)
		p.logger.Info("poll interval changed", "interval", d)
	}
}

// Interval returns the interval in effect.
func (p *Poller[T]) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Running reports whether a timer is active.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

// runningLocked treats a loop whose Start context has ended as stopped.
func (p *Poller[T]) runningLocked() bool {
	if p.loop == nil {
		return false
	}
	if p.runCtx.Err() != nil {
		p.stopLocked()
		return false
	}
	return true
}

// Refresh performs exactly one fetch now. The schedule phase is untouched.
func (p *Poller[T]) Refresh(ctx context.Context) (T, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		var zero T
		return zero, ErrClosed
	}
	return p.poll(ctx)
}

// State returns a snapshot.
func (p *Poller[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops polling for good.
func (p *Poller[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Stop(context.Background())
}

func (p *Poller[T]) resolveInterval(ctx context.Context, override bool) time.Duration {
	p.mu.Lock()
	interval := p.interval
	p.mu.Unlock()
	if override || p.prefs == nil || p.cfg.PreferenceKey == "" {
		return interval
	}

	d, ok, err := prefs.Interval(ctx, p.prefs, p.cfg.PreferenceKey)
	if err != nil {
		p.logger.Warn("cannot read interval preference", "key", p.cfg.PreferenceKey, "error", err)
		return interval
	}
	if !ok {
		return interval
	}
	return d
}

func (p *Poller[T]) startLoopLocked(immediate bool) {
	l := &loop{
		ticker: p.clock.NewTicker(p.interval),
		stop:   make(chan struct{}),
	}
	p.loop = l
	ctx := p.runCtx

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if immediate {
			p.poll(ctx)
		}
		for {
			select {
			case <-l.stop:
				return
			case <-ctx.Done():
				p.mu.Lock()
				if p.loop == l {
					p.stopLocked()
					p.logger.Info("polling stopped", "reason", ctx.Err())
				}
				p.mu.Unlock()
				return
			case <-l.ticker.Chan():
				p.poll(ctx)
			}
		}
	}()
}

func (p *Poller[T]) stopLoopLocked() {
	if p.loop == nil {
		return
	}
	p.loop.ticker.Stop()
	close(p.loop.stop)
	p.loop = nil
}

func (p *Poller[T]) stopLocked() {
	p.stopLoopLocked()
	if p.runCancel != nil {
		p.runCancel()
		p.runCancel = nil
	}
}

// poll runs one fetch and records its outcome. A fetch aborted because
// ctx ended is not recorded.
func (p *Poller[T]) poll(ctx context.Context) (T, error) {
	p.mu.Lock()
	p.inflight++
	p.state.Loading = true
	p.mu.Unlock()

	start := p.clock.Now()
	data, err := p.fetch(ctx)
	elapsed := p.clock.Since(start)

	p.mu.Lock()
	p.inflight--
	p.state.Loading = p.inflight > 0

	if err != nil && ctx.Err() != nil {
		p.mu.Unlock()
		p.metrics.Observe(p.cfg.Name, metrics.OutcomeSuperseded, elapsed)
		return data, err
	}

	if err != nil {
		p.state.Err = err
		onError := p.onError
		p.mu.Unlock()

		p.metrics.Observe(p.cfg.Name, metrics.OutcomeError, elapsed)
		p.logger.Warn("poll failed", "error", err, "duration", elapsed)
		if onError != nil {
			onError(err)
		}
		return data, err
	}

	p.state.Data = data
	p.state.HasData = true
	p.state.Err = nil
	p.state.LastUpdate = p.clock.Now()
	onData := p.onData
	p.mu.Unlock()

	p.metrics.Observe(p.cfg.Name, metrics.OutcomeSuccess, elapsed)
	p.logger.Debug("poll complete", "duration", elapsed)
	if onData != nil {
		onData(data)
	}
	return data, nil
}

package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/metrics"
)

// UpdateFunc receives a registration's state after each accepted event.
type UpdateFunc func(state any, ev Event)

// FilterFunc decides whether an event of a registered type is applied.
type FilterFunc func(ev Event) bool

// TransformFunc turns an event into a partial patch merged into state.
type TransformFunc func(ev Event) map[string]any

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics records routing counters on m.
func WithMetrics(m *metrics.RouterMetrics) Option {
	return func(r *Router) { r.metrics = m }
}

// RegisterOption configures a Registration.
type RegisterOption func(*Registration)

// WithFilter applies only events for which fn returns true.
func WithFilter(fn FilterFunc) RegisterOption {
	return func(reg *Registration) { reg.filter = fn }
}

// WithTransform merges fn's patch into state instead of replacing it.
func WithTransform(fn TransformFunc) RegisterOption {
	return func(reg *Registration) { reg.transform = fn }
}

// WithInitialState sets the state before the first event.
func WithInitialState(state any) RegisterOption {
	return func(reg *Registration) { reg.state = state }
}

// Router decodes frames from the Connection Manager and fans them out to
// registrations in registration order.
type Router struct {
	logger  *slog.Logger
	metrics *metrics.RouterMetrics

	// Input from Connection Manager
	input <-chan connection.RawMessage

	// Lifecycle
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	regMu  sync.RWMutex
	regs   []*Registration
	nextID uint64

	// Stats
	mu          sync.RWMutex
	received    int64
	dispatched  int64
	parseErrors int64
	ignored     int64
}

// NewRouter creates an Event Router reading from input. input may be nil
// when events are only fed through Dispatch.
func NewRouter(input <-chan connection.RawMessage, opts ...Option) *Router {
	r := &Router{input: input}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// Start begins routing messages from the input channel.
func (r *Router) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop(ctx)

	r.logger.Info("event router started")
	return nil
}

// Stop gracefully shuts down the router.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	// Wait for goroutine to finish
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
		return ctx.Err()
	}
}

// Register subscribes onUpdate to a non-empty set of event types.
func (r *Router) Register(types []string, onUpdate UpdateFunc, opts ...RegisterOption) (*Registration, error) {
	if len(types) == 0 {
		return nil, ErrNoEventTypes
	}

	reg := &Registration{
		router:   r,
		types:    make(map[string]struct{}, len(types)),
		onUpdate: onUpdate,
	}
	for _, t := range types {
		if t == "" {
			return nil, ErrNoEventTypes
		}
		reg.types[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(reg)
	}
	reg.active.Store(true)

	r.regMu.Lock()
	r.nextID++
	reg.id = r.nextID
	r.regs = append(r.regs, reg)
	r.regMu.Unlock()

	return reg, nil
}

// Dispatch routes one frame synchronously.
func (r *Router) Dispatch(raw connection.RawMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()
	r.metrics.IncReceived()

	ev, err := parseEvent(raw.Data, raw.ReceivedAt)
	if err != nil {
		r.logger.Warn("dropping malformed event", "error", err, "bytes", len(raw.Data))
		r.mu.Lock()
		r.parseErrors++
		r.mu.Unlock()
		r.metrics.IncParseErrors()
		return
	}

	r.regMu.RLock()
	regs := make([]*Registration, len(r.regs))
	copy(regs, r.regs)
	r.regMu.RUnlock()

	var applied int64
	for _, reg := range regs {
		if reg.apply(ev) {
			applied++
			r.metrics.IncDispatched()
		}
	}

	r.mu.Lock()
	r.dispatched += applied
	if applied == 0 {
		r.ignored++
	}
	r.mu.Unlock()

	if applied == 0 {
		r.logger.Debug("no registration for event", "type", ev.Type)
		r.metrics.IncIgnored()
	}
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		Dispatched:       r.dispatched,
		ParseErrors:      r.parseErrors,
		Ignored:          r.ignored,
	}
}

// routeLoop is the main routing goroutine.
func (r *Router) routeLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.Dispatch(raw)
		}
	}
}

func (r *Router) remove(reg *Registration) {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	for i, cur := range r.regs {
		if cur.id == reg.id {
			r.regs = append(r.regs[:i:i], r.regs[i+1:]...)
			return
		}
	}
}

// Registration is one subscriber and the state it accumulates.
type Registration struct {
	router    *Router
	id        uint64
	types     map[string]struct{}
	onUpdate  UpdateFunc
	filter    FilterFunc
	transform TransformFunc
	active    atomic.Bool

	mu    sync.Mutex
	state any
}

// State returns the current state.
func (reg *Registration) State() any {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.state
}

// SetState replaces the state, for example with a polled snapshot.
func (reg *Registration) SetState(state any) {
	reg.mu.Lock()
	reg.state = state
	reg.mu.Unlock()
}

// Unsubscribe stops delivery. It is idempotent.
func (reg *Registration) Unsubscribe() {
	if reg.active.CompareAndSwap(true, false) {
		reg.router.remove(reg)
	}
}

// apply reports whether ev was accepted.
func (reg *Registration) apply(ev Event) bool {
	if !reg.active.Load() {
		return false
	}
	if _, ok := reg.types[ev.Type]; !ok {
		return false
	}
	if reg.filter != nil && !reg.filter(ev) {
		return false
	}

	var next any
	if reg.transform != nil {
		patch := reg.transform(ev)
		reg.mu.Lock()
		next = merge(reg.state, patch)
		reg.state = next
		reg.mu.Unlock()
	} else {
		var payload any
		_ = ev.Decode(&payload) // the envelope already validated the JSON
		reg.mu.Lock()
		reg.state = payload
		next = payload
		reg.mu.Unlock()
	}

	if reg.onUpdate != nil {
		reg.onUpdate(next, ev)
	}
	return true
}

// merge overlays patch on a shallow copy of state. A non-map state is
// replaced by the patch.
func merge(state any, patch map[string]any) any {
	base, _ := state.(map[string]any)
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

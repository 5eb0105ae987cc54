package request

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/retry"
)

var (
	// ErrSuperseded is returned by an Execute whose result was discarded
	// because a newer Execute, Reset or Close happened first.
	ErrSuperseded = errors.New("request superseded")

	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("request closed")
)

// Func performs the remote call for one invocation.
type Func[A, T any] func(ctx context.Context, args A) (T, error)

// State is the observable lifecycle of a call-site.
type State[T any] struct {
	Data    T
	Loading bool
	Err     error
	Success bool
}

type options struct {
	name     string
	logger   *slog.Logger
	metrics  *metrics.RequestMetrics
	policy   *retry.Policy
	classify retry.Classify
}

// Option configures a Request.
type Option func(*options)

// WithName labels logs and metrics for this call-site.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records executions on m.
func WithMetrics(m *metrics.RequestMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRetry retries each invocation according to p. A nil classify retries
// every error.
func WithRetry(p retry.Policy, classify retry.Classify) Option {
	return func(o *options) {
		o.policy = &p
		o.classify = classify
	}
}

// Request is a single call-site with last-call-wins semantics.
type Request[A, T any] struct {
	fn   Func[A, T]
	opts options

	mu        sync.Mutex
	state     State[T]
	gen       uint64
	cancel    context.CancelFunc
	lastArgs  A
	hasArgs   bool
	closed    bool
	onSuccess func(data T, args A)
	onError   func(err error, args A)
}

// New creates a call-site for fn.
func New[A, T any](fn Func[A, T], opts ...Option) *Request[A, T] {
	o := options{name: "request", logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("request", o.name)

	return &Request[A, T]{fn: fn, opts: o}
}

// OnSuccess sets the callback fired after a non-superseded success.
func (r *Request[A, T]) OnSuccess(fn func(data T, args A)) {
	r.mu.Lock()
	r.onSuccess = fn
	r.mu.Unlock()
}

// OnError sets the callback fired after a non-superseded failure.
func (r *Request[A, T]) OnError(fn func(err error, args A)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// Execute aborts any pending invocation and runs fn with args. It blocks
// until fn returns. A superseded invocation returns ErrSuperseded and leaves
// state alone. A failed invocation clears Data.
func (r *Request[A, T]) Execute(ctx context.Context, args A) (T, error) {
	var zero T

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return zero, ErrClosed
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	callCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.lastArgs = args
	r.hasArgs = true
	r.state.Loading = true
	r.state.Err = nil
	r.state.Success = false
	r.mu.Unlock()

	start := time.Now()
	data, err := r.call(callCtx, args)
	cancel()

	r.mu.Lock()
	if gen != r.gen {
		closed := r.closed
		r.mu.Unlock()
		r.opts.metrics.Observe(r.opts.name, metrics.OutcomeSuperseded, time.Since(start))
		r.opts.logger.Debug("discarding superseded result", "generation", gen)
		if closed {
			return zero, ErrClosed
		}
		return zero, ErrSuperseded
	}
	r.cancel = nil
	if err != nil {
		r.state = State[T]{Err: err}
	} else {
		r.state = State[T]{Data: data, Success: true}
	}
	onSuccess, onError := r.onSuccess, r.onError
	r.mu.Unlock()

	if err != nil {
		r.opts.metrics.Observe(r.opts.name, metrics.OutcomeError, time.Since(start))
		r.opts.logger.Debug("request failed", "error", err)
		if onError != nil {
			onError(err, args)
		}
		return zero, err
	}

	r.opts.metrics.Observe(r.opts.name, metrics.OutcomeSuccess, time.Since(start))
	if onSuccess != nil {
		onSuccess(data, args)
	}
	return data, nil
}

func (r *Request[A, T]) call(ctx context.Context, args A) (T, error) {
	if r.opts.policy == nil {
		return r.fn(ctx, args)
	}
	return retry.Do(ctx, *r.opts.policy, r.opts.classify, func(ctx context.Context) (T, error) {
		return r.fn(ctx, args)
	})
}

// Retry re-runs the last invocation if it failed. Without a recorded error
// it returns the current data and does nothing.
func (r *Request[A, T]) Retry(ctx context.Context) (T, error) {
	r.mu.Lock()
	if r.state.Err == nil || !r.hasArgs {
		data := r.state.Data
		r.mu.Unlock()
		return data, nil
	}
	args := r.lastArgs
	r.mu.Unlock()

	return r.Execute(ctx, args)
}

// Reset aborts any pending invocation and restores the empty state.
func (r *Request[A, T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortLocked()
	r.state = State[T]{}
}

// Close aborts any pending invocation. Later Executes return ErrClosed.
func (r *Request[A, T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.abortLocked()
	r.state.Loading = false
}

func (r *Request[A, T]) abortLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
}

// State returns a copy of the current state.
func (r *Request[A, T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Loading reports whether a non-aborted invocation is outstanding.
func (r *Request[A, T]) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Loading
}

// Package pagination accumulates server pages into one growing sequence.
//
// Pages are fetched through a request.Request, so a Refresh supersedes an
// in-flight LoadMore and the stale page is never appended. Items survive a
// failed fetch; only a successful page or a Refresh changes them.
package pagination

import (
	"context"
	"errors"
	"sync"

	"github.com/rickgao/livesync/internal/api"
	"github.com/rickgao/livesync/internal/request"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 20

// FetchFunc fetches one page.
type FetchFunc[T any] func(ctx context.Context, page, pageSize int) (api.Page[T], error)

// State is a snapshot of an Accumulator.
type State[T any] struct {
	Items       []T
	CurrentPage int
	HasMore     bool
	TotalCount  int
	Loading     bool
	Err         error
}

type pageArgs struct {
	page  int
	epoch uint64
}

// Accumulator is a paginated list with load-more semantics.
type Accumulator[T any] struct {
	pageSize int
	req      *request.Request[pageArgs, api.Page[T]]

	mu     sync.Mutex
	items  []T
	page   int
	next   *string
	total  int
	loaded bool
	epoch  uint64 // bumped by Refresh; results from older epochs are dropped
}

// Option configures an Accumulator.
type Option func(*settings)

type settings struct {
	pageSize int
	reqOpts  []request.Option
}

// WithPageSize sets the page size.
func WithPageSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithRequestOptions passes options to the underlying request engine.
func WithRequestOptions(opts ...request.Option) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, opts...) }
}

// New creates an empty accumulator over fetch.
func New[T any](fetch FetchFunc[T], opts ...Option) *Accumulator[T] {
	s := settings{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&s)
	}

	a := &Accumulator[T]{pageSize: s.pageSize}
	a.req = request.New(func(ctx context.Context, args pageArgs) (api.Page[T], error) {
		return fetch(ctx, args.page, a.pageSize)
	}, s.reqOpts...)
	return a
}

// Load fetches the first page. It is Refresh under another name.
func (a *Accumulator[T]) Load(ctx context.Context) error {
	return a.Refresh(ctx)
}

// Refresh wipes the sequence, resets the page counter to 1 and fetches the
// first page.
func (a *Accumulator[T]) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.epoch++
	epoch := a.epoch
	a.items = nil
	a.page = 0
	a.next = nil
	a.total = 0
	a.loaded = false
	a.mu.Unlock()

	return a.fetch(ctx, pageArgs{page: 1, epoch: epoch})
}

// LoadMore requests the page after the current one and appends it. It is a
// no-op while a fetch is in flight or when the last page had no next link.
// Before the first load it loads the first page.
func (a *Accumulator[T]) LoadMore(ctx context.Context) error {
	a.mu.Lock()
	if !a.loaded {
		a.mu.Unlock()
		if a.req.Loading() {
			return nil
		}
		return a.Refresh(ctx)
	}
	if a.next == nil || *a.next == "" || a.req.Loading() {
		a.mu.Unlock()
		return nil
	}
	args := pageArgs{page: a.page + 1, epoch: a.epoch}
	a.mu.Unlock()

	return a.fetch(ctx, args)
}

func (a *Accumulator[T]) fetch(ctx context.Context, args pageArgs) error {
	page, err := a.req.Execute(ctx, args)
	if errors.Is(err, request.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if args.epoch != a.epoch {
		return nil
	}
	if args.page == 1 {
		a.items = append([]T(nil), page.Results...)
	} else {
		a.items = append(a.items, page.Results...)
	}
	a.page = args.page
	a.next = page.Next
	a.total = page.Count
	a.loaded = true
	return nil
}

// State returns a snapshot. Items is a copy.
func (a *Accumulator[T]) State() State[T] {
	rs := a.req.State()

	a.mu.Lock()
	defer a.mu.Unlock()
	page := a.page
	if page == 0 {
		page = 1
	}
	return State[T]{
		Items:       append([]T(nil), a.items...),
		CurrentPage: page,
		HasMore:     a.next != nil && *a.next != "",
		TotalCount:  a.total,
		Loading:     rs.Loading,
		Err:         rs.Err,
	}
}

// Close aborts any in-flight fetch.
func (a *Accumulator[T]) Close() {
	a.req.Close()
}

// Package optimistic holds a value that can be updated speculatively ahead of
// server confirmation and rolled back when the caller detects failure.
package optimistic

import (
	"context"
	"sync"
)

// Snapshot is a point-in-time view of a Value.
type Snapshot[T any] struct {
	Value       T
	Rollback    T
	Speculative bool
}

// Value has a single rollback slot. A second Update before confirmation
// replaces the rollback target with the value visible just before it.
type Value[T any] struct {
	mu          sync.Mutex
	value       T
	rollback    T
	speculative bool
}

// New returns a confirmed Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{value: initial, rollback: initial}
}

// Update shows v immediately and remembers the current value for Revert.
func (o *Value[T]) Update(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rollback = o.value
	o.value = v
	o.speculative = true
}

// Confirm accepts the speculative value as-is.
func (o *Value[T]) Confirm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speculative = false
	o.rollback = o.value
}

// ConfirmWith replaces the value with the server's and clears the
// speculative flag.
func (o *Value[T]) ConfirmWith(server T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = server
	o.rollback = server
	o.speculative = false
}

// Revert restores the rollback target. It reports false when there was no
// speculative update to undo.
func (o *Value[T]) Revert() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.speculative {
		return false
	}
	o.value = o.rollback
	o.speculative = false
	return true
}

// Rebase applies fn to both the visible value and the rollback target,
// leaving the speculative flag as it was. Use it for changes that hold
// whether or not a pending update is later confirmed.
func (o *Value[T]) Rebase(fn func(T) T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = fn(o.value)
	o.rollback = fn(o.rollback)
}

// Get returns the visible value.
func (o *Value[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// IsSpeculative reports whether the visible value awaits confirmation.
func (o *Value[T]) IsSpeculative() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speculative
}

// Snapshot returns the full state.
func (o *Value[T]) Snapshot() Snapshot[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot[T]{Value: o.value, Rollback: o.rollback, Speculative: o.speculative}
}

// Apply shows v, runs commit, then confirms with commit's result or reverts
// on error.
func (o *Value[T]) Apply(ctx context.Context, v T, commit func(ctx context.Context, v T) (T, error)) (T, error) {
	o.Update(v)
	server, err := commit(ctx, v)
	if err != nil {
		o.Revert()
		var zero T
		return zero, err
	}
	o.ConfirmWith(server)
	return server, nil
}

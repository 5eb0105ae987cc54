package feed

import "sync"

// Bounded is a newest-first list that keeps at most max items.
type Bounded[T any] struct {
	mu    sync.RWMutex
	max   int
	items []T
}

// NewBounded returns an empty list capped at max. A max below 1 is treated
// as 1.
func NewBounded[T any](max int) *Bounded[T] {
	if max < 1 {
		max = 1
	}
	return &Bounded[T]{max: max, items: make([]T, 0, max)}
}

// Push prepends item and evicts the oldest entries beyond the cap.
func (b *Bounded[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items) + 1
	if n > b.max {
		n = b.max
	}
	next := make([]T, n)
	next[0] = item
	copy(next[1:], b.items)
	b.items = next
}

// Items returns a copy, newest first.
func (b *Bounded[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of items held.
func (b *Bounded[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Clear removes every item.
func (b *Bounded[T]) Clear() {
	b.mu.Lock()
	b.items = b.items[:0:0]
	b.mu.Unlock()
}

// Update replaces every item matching match with fn(item) and reports how
// many were changed.
func (b *Bounded[T]) Update(match func(T) bool, fn func(T) T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int
	for i, it := range b.items {
		if match(it) {
			b.items[i] = fn(it)
			n++
		}
	}
	return n
}

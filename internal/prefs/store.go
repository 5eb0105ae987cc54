// Package prefs stores user preferences such as the poll interval override.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidInterval is returned for values that are not a positive
// duration.
var ErrInvalidInterval = errors.New("invalid interval")

// Store reads and writes preference values by key.
type Store interface {
	// Get returns the value and whether it was set.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore keeps preferences in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// ParseInterval reads a stored interval: a Go duration ("45s") or a bare
// millisecond count ("45000").
func ParseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidInterval)
	}

	var d time.Duration
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if parsed, err := time.ParseDuration(raw); err == nil {
		d = parsed
	} else {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, raw)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidInterval, raw)
	}
	return d, nil
}

// FormatInterval renders d as the millisecond count ParseInterval accepts.
func FormatInterval(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// Interval reads key from s and parses it. ok is false when the key is
// unset or unparseable.
func Interval(ctx context.Context, s Store, key string) (time.Duration, bool, error) {
	if s == nil || key == "" {
		return 0, false, nil
	}
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("get preference %s: %w", key, err)
	}
	if !found {
		return 0, false, nil
	}
	d, err := ParseInterval(raw)
	if err != nil {
		return 0, false, nil
	}
	return d, true, nil
}

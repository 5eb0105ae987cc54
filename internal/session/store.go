package session

import (
	"context"
	"sync"
	"time"

	"github.com/rickgao/livesync/internal/model"
)

// Snapshot is the persisted session blob.
type Snapshot struct {
	Credentials model.Credentials `json:"credentials"`
	User        *model.User       `json:"user,omitempty"`
	SavedAt     time.Time         `json:"saved_at"`
}

// Store persists the session snapshot. Load returns (nil, nil) when nothing
// is stored.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	cp := *m.snap
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.snap = &cp
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

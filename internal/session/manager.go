package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/livesync/internal/model"
)

var (
	// ErrNoSession is returned when a refresh is requested without credentials.
	ErrNoSession = errors.New("no session")

	// ErrRefreshFailed wraps the error of an irrecoverable refresh. The
	// session has been cleared when it is returned.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// RefreshFunc exchanges a refresh token for a new credential pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (model.Credentials, error)

// Manager holds the current session and coordinates refreshes.
type Manager struct {
	store   Store
	refresh RefreshFunc
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu   sync.RWMutex
	snap *Snapshot
}

// NewManager creates a Manager. refresh may be nil, in which case every
// refresh fails and clears the session.
func NewManager(store Store, refresh RefreshFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = &MemoryStore{}
	}
	return &Manager{
		store:   store,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}
}

// Restore loads the persisted session, if any.
func (m *Manager) Restore(ctx context.Context) error {
	snap, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if snap != nil && !snap.Credentials.Valid() {
		m.logger.Warn("ignoring incomplete persisted session")
		snap = nil
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()

	if snap != nil {
		m.logger.Info("session restored", "saved_at", snap.SavedAt)
	}
	return nil
}

// Login installs a new session and persists it.
func (m *Manager) Login(ctx context.Context, creds model.Credentials, user *model.User) error {
	if !creds.Valid() {
		return errors.New("login: access and refresh tokens are required")
	}
	snap := &Snapshot{Credentials: creds, User: user, SavedAt: m.now()}
	if err := m.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	return nil
}

// Logout drops the session and its persisted copy.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.snap = nil
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// AccessToken returns the current access token, or "" without a session.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return ""
	}
	return m.snap.Credentials.AccessToken
}

// Authenticated reports whether a session exists.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap != nil
}

// User returns the persisted user snapshot, if any.
func (m *Manager) User() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil || m.snap.User == nil {
		return nil
	}
	u := *m.snap.User
	return &u
}

// Refresh returns a valid access token after failedToken was rejected.
// If the session already moved past failedToken the current token is
// returned at once. Otherwise exactly one refresh runs no matter how many
// callers are waiting.
func (m *Manager) Refresh(ctx context.Context, failedToken string) (string, error) {
	if tok, ok := m.replaced(failedToken); ok {
		return tok, nil
	}

	v, err, shared := m.group.Do("refresh", func() (any, error) {
		// A refresh may have completed between the check above and here.
		if tok, ok := m.replaced(failedToken); ok {
			return tok, nil
		}
		return m.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("joined in-flight credential refresh")
	}
	return v.(string), nil
}

// replaced reports whether the current token differs from failedToken.
func (m *Manager) replaced(failedToken string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return "", false
	}
	cur := m.snap.Credentials.AccessToken
	return cur, cur != failedToken
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()
	if snap == nil {
		return "", ErrNoSession
	}

	if m.refresh == nil {
		m.clear(ctx)
		return "", fmt.Errorf("%w: no refresher configured", ErrRefreshFailed)
	}

	creds, err := m.refresh(ctx, snap.Credentials.RefreshToken)
	if err == nil && creds.AccessToken == "" {
		err = errors.New("empty access token")
	}
	if err != nil {
		m.logger.Warn("credential refresh failed, clearing session", "error", err)
		m.clear(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = snap.Credentials.RefreshToken
	}

	next := &Snapshot{Credentials: creds, User: snap.User, SavedAt: m.now()}

	m.mu.Lock()
	m.snap = next
	m.mu.Unlock()

	if err := m.store.Save(ctx, next); err != nil {
		// The in-memory session is valid; persistence catches up on the next save.
		m.logger.Warn("failed to persist refreshed session", "error", err)
	}

	m.logger.Info("credential refreshed")
	return creds.AccessToken, nil
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.snap = nil
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}
}

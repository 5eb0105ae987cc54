package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/livesync/internal/model"
)

func loggedIn(t *testing.T, refresh RefreshFunc) (*Manager, *MemoryStore) {
	t.Helper()
	store := &MemoryStore{}
	m := NewManager(store, refresh, nil)
	require.NoError(t, m.Login(context.Background(),
		model.Credentials{AccessToken: "old", RefreshToken: "r1"},
		&model.User{ID: "u1", Email: "ada@example.com"}))
	return m, store
}

func TestManager_LoginLogout(t *testing.T) {
	m, store := loggedIn(t, nil)
	assert.True(t, m.Authenticated())
	assert.Equal(t, "old", m.AccessToken())
	assert.Equal(t, "u1", m.User().ID)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "r1", snap.Credentials.RefreshToken)

	require.NoError(t, m.Logout(context.Background()))
	assert.False(t, m.Authenticated())
	assert.Empty(t, m.AccessToken())
	assert.Nil(t, m.User())

	snap, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestManager_LoginRejectsIncomplete(t *testing.T) {
	m := NewManager(nil, nil, nil)
	err := m.Login(context.Background(), model.Credentials{AccessToken: "a"}, nil)
	assert.Error(t, err)
	assert.False(t, m.Authenticated())
}

func TestManager_Restore(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(context.Background(), &Snapshot{
		Credentials: model.Credentials{AccessToken: "a", RefreshToken: "r"},
	}))

	m := NewManager(store, nil, nil)
	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, "a", m.AccessToken())
}

func TestManager_RestoreIgnoresIncomplete(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(context.Background(), &Snapshot{
		Credentials: model.Credentials{AccessToken: "a"},
	}))

	m := NewManager(store, nil, nil)
	require.NoError(t, m.Restore(context.Background()))
	assert.False(t, m.Authenticated())
}

func TestManager_RefreshRotatesAndPersists(t *testing.T) {
	m, store := loggedIn(t, func(_ context.Context, refreshToken string) (model.Credentials, error) {
		assert.Equal(t, "r1", refreshToken)
		return model.Credentials{AccessToken: "new"}, nil
	})

	tok, err := m.Refresh(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.Equal(t, "new", m.AccessToken())

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Credentials.AccessToken)
	assert.Equal(t, "r1", snap.Credentials.RefreshToken, "unrotated refresh token is kept")
	assert.Equal(t, "u1", snap.User.ID)
}

func TestManager_RefreshCoalescesConcurrentFailures(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m, _ := loggedIn(t, func(context.Context, string) (model.Credentials, error) {
		calls.Add(1)
		<-release
		return model.Credentials{AccessToken: "new", RefreshToken: "r2"}, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Refresh(context.Background(), "old")
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "new", tokens[i])
	}
}

func TestManager_RefreshSkippedWhenTokenAlreadyReplaced(t *testing.T) {
	var calls atomic.Int32
	m, _ := loggedIn(t, func(context.Context, string) (model.Credentials, error) {
		calls.Add(1)
		return model.Credentials{AccessToken: "new"}, nil
	})

	tok, err := m.Refresh(context.Background(), "stale-from-earlier")
	require.NoError(t, err)
	assert.Equal(t, "old", tok)
	assert.Equal(t, int32(0), calls.Load())
}

func TestManager_RefreshFailureClearsSession(t *testing.T) {
	boom := errors.New("refresh token revoked")
	m, store := loggedIn(t, func(context.Context, string) (model.Credentials, error) {
		return model.Credentials{}, boom
	})

	_, err := m.Refresh(context.Background(), "old")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Authenticated())

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestManager_RefreshWithoutSession(t *testing.T) {
	m := NewManager(nil, func(context.Context, string) (model.Credentials, error) {
		t.Fatal("refresh must not be called without a session")
		return model.Credentials{}, nil
	}, nil)

	_, err := m.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)
}

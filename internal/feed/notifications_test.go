package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/livesync/internal/poller"
	"github.com/rickgao/livesync/internal/router"
)

type notificationSource struct {
	mu      sync.Mutex
	unread  int
	markErr error
	marked  []string

	// gate, when set, holds MarkNotificationRead until closed.
	gate chan struct{}
}

func (s *notificationSource) GetUnreadCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread, nil
}

func (s *notificationSource) MarkNotificationRead(ctx context.Context, id string) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, id)
	return s.markErr
}

func newTestNotifications(t *testing.T, src NotificationSource) (*router.Router, *Notifications) {
	t.Helper()
	r := router.NewRouter(nil)
	n, err := NewNotifications(r, src, NotificationsConfig{Poll: stoppedPoll("notifications")},
		WithPollerOptions(poller.WithClock(clockwork.NewFakeClock())))
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return r, n
}

func TestNotifications_EventIncrementsUnread(t *testing.T) {
	r, n := newTestNotifications(t, &notificationSource{})

	dispatch(r, `{"type":"notification","data":{"id":"n1","title":"Build done"}}`)
	dispatch(r, `{"type":"notification","data":{"id":"n2","title":"Deploy done"}}`)
	dispatch(r, `{"type":"notification","data":{"id":"n3","title":"Old","is_read":true}}`)

	assert.Equal(t, 2, n.Unread())
	items := n.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "n3", items[0].ID)
}

func TestNotifications_FeedCapped(t *testing.T) {
	r, n := newTestNotifications(t, &notificationSource{})

	for i := 0; i < 25; i++ {
		dispatch(r, `{"type":"notification","data":{"title":"ping"}}`)
	}

	assert.Len(t, n.Items(), DefaultNotificationLimit)
	assert.Equal(t, 25, n.Unread())
}

func TestNotifications_ReadEventDecrements(t *testing.T) {
	r, n := newTestNotifications(t, &notificationSource{})

	dispatch(r, `{"type":"notification","data":{"id":"n1"}}`)
	dispatch(r, `{"type":"notification_read","data":{"id":"n1"}}`)

	assert.Equal(t, 0, n.Unread())
	assert.True(t, n.Items()[0].Read)

	// A repeated read event for the same item changes nothing.
	dispatch(r, `{"type":"notification","data":{"id":"n2"}}`)
	dispatch(r, `{"type":"notification_read","data":{"id":"n1"}}`)
	assert.Equal(t, 1, n.Unread())
}

func TestNotifications_UnreadFloorsAtZero(t *testing.T) {
	r, n := newTestNotifications(t, &notificationSource{})

	dispatch(r, `{"type":"notification_read","data":{"id":"unknown-1"}}`)
	dispatch(r, `{"type":"notification_read","data":{"id":"unknown-2"}}`)

	assert.Equal(t, 0, n.Unread())
}

func TestNotifications_ReadEventWithoutIDDropped(t *testing.T) {
	r, n := newTestNotifications(t, &notificationSource{})

	dispatch(r, `{"type":"notification","data":{"id":"n1"}}`)
	dispatch(r, `{"type":"notification_read","data":{}}`)

	assert.Equal(t, 1, n.Unread())
}

func TestNotifications_MarkReadConfirmed(t *testing.T) {
	src := &notificationSource{}
	r, n := newTestNotifications(t, src)

	dispatch(r, `{"type":"notification","data":{"id":"n1"}}`)
	dispatch(r, `{"type":"notification","data":{"id":"n2"}}`)

	require.NoError(t, n.MarkRead(context.Background(), "n1"))

	snap := n.Snapshot()
	assert.Equal(t, 1, snap.Unread)
	assert.False(t, snap.Pending)
	assert.Equal(t, []string{"n1"}, src.marked)

	// The server echo of our own change is not counted twice.
	dispatch(r, `{"type":"notification_read","data":{"id":"n1"}}`)
	assert.Equal(t, 1, n.Unread())
}

func TestNotifications_MarkReadRevertsOnFailure(t *testing.T) {
	src := &notificationSource{markErr: errors.New("server error")}
	r, n := newTestNotifications(t, src)

	dispatch(r, `{"type":"notification","data":{"id":"n1"}}`)

	err := n.MarkRead(context.Background(), "n1")
	require.Error(t, err)
	assert.ErrorIs(t, err, src.markErr)

	assert.Equal(t, 1, n.Unread())
	assert.False(t, n.Items()[0].Read)
	assert.False(t, n.Snapshot().Pending)
}

func TestNotifications_MarkReadIsOptimistic(t *testing.T) {
	src := &notificationSource{gate: make(chan struct{})}
	r, n := newTestNotifications(t, src)

	dispatch(r, `{"type":"notification","data":{"id":"n1"}}`)

	done := make(chan error, 1)
	go func() { done <- n.MarkRead(context.Background(), "n1") }()

	require.Eventually(t, func() bool { return n.Snapshot().Pending }, timeout, tick)
	assert.Equal(t, 0, n.Unread(), "count drops before the server answers")

	// A notification arriving mid-flight survives a later revert.
	dispatch(r, `{"type":"notification","data":{"id":"n2"}}`)
	assert.Equal(t, 1, n.Unread())

	src.mu.Lock()
	src.markErr = errors.New("server error")
	src.mu.Unlock()
	close(src.gate)
	require.Error(t, <-done)

	assert.Equal(t, 2, n.Unread())
}

func TestNotifications_PollIsAuthoritative(t *testing.T) {
	src := &notificationSource{unread: 7}
	r, n := newTestNotifications(t, src)

	dispatch(r, `{"type":"notification","data":{"id":"n1"}}`)

	c, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, c)
	assert.Equal(t, 7, n.Unread())
	assert.False(t, n.Poller().Running(), "Refresh does not start the schedule")
}

package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rickgao/livesync/internal/model"
	"github.com/rickgao/livesync/internal/optimistic"
	"github.com/rickgao/livesync/internal/poller"
	"github.com/rickgao/livesync/internal/router"
)

// NotificationSource reads and updates notifications on the server.
type NotificationSource interface {
	GetUnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// NotificationsConfig holds notification settings.
type NotificationsConfig struct {
	Poll  poller.Config
	Limit int
}

// DefaultNotificationsConfig returns a 20 item feed and a 30s unread poll.
func DefaultNotificationsConfig() NotificationsConfig {
	poll := poller.DefaultConfig()
	poll.Name = "notifications"
	return NotificationsConfig{Poll: poll, Limit: DefaultNotificationLimit}
}

// NotificationsSnapshot is a point-in-time view of the notifications.
type NotificationsSnapshot struct {
	Items    []model.Notification `json:"items"`
	Unread   int                  `json:"unread"`
	Pending  bool                 `json:"pending"`
	LastPoll time.Time            `json:"last_poll,omitzero"`
	Error    string               `json:"error,omitempty"`
}

// Notifications keeps the live notification list and unread counter.
type Notifications struct {
	settings
	src    NotificationSource
	items  *Bounded[model.Notification]
	regs   []*router.Registration
	poller *poller.Poller[int]

	// mu serialises read-modify-write of unread against the item list.
	mu     sync.Mutex
	unread *optimistic.Value[int]
}

// NewNotifications registers the notification aggregator on r.
func NewNotifications(r *router.Router, src NotificationSource, cfg NotificationsConfig, opts ...Option) (*Notifications, error) {
	def := DefaultNotificationsConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Poll.Name == "" {
		cfg.Poll.Name = def.Poll.Name
	}

	n := &Notifications{
		settings: newSettings("notifications", opts),
		src:      src,
		items:    NewBounded[model.Notification](cfg.Limit),
		unread:   optimistic.New(0),
	}

	created, err := r.Register([]string{EventNotification}, func(_ any, ev router.Event) { n.onNotification(ev) })
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", EventNotification, err)
	}
	n.regs = append(n.regs, created)

	read, err := r.Register([]string{EventNotificationRead}, func(_ any, ev router.Event) { n.onRead(ev) })
	if err != nil {
		n.unsubscribe()
		return nil, fmt.Errorf("register %s: %w", EventNotificationRead, err)
	}
	n.regs = append(n.regs, read)

	n.poller = poller.New(src.GetUnreadCount, cfg.Poll, n.pollOpts...)
	n.poller.OnData(func(count int) {
		n.mu.Lock()
		n.unread.ConfirmWith(max(count, 0))
		n.mu.Unlock()
	})

	return n, nil
}

func (n *Notifications) onNotification(ev router.Event) {
	var item model.Notification
	if err := ev.Decode(&item); err != nil {
		n.logger.Warn("dropping undecodable notification", "error", err)
		return
	}
	item.ID = itemID(item.ID, ev)
	if item.CreatedAt.IsZero() {
		item.CreatedAt = ev.Timestamp
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.items.Push(item)
	if !item.Read {
		n.unread.Rebase(func(c int) int { return c + 1 })
	}
}

func (n *Notifications) onRead(ev router.Event) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := ev.Decode(&payload); err != nil || payload.ID == "" {
		n.logger.Warn("dropping notification_read without id", "error", err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isRead(payload.ID) {
		return
	}
	n.items.Update(matchID(payload.ID), setRead(true))
	n.unread.Rebase(decrement)
}

// isRead reports whether id is held and already read. Ids not held count
// as unread.
func (n *Notifications) isRead(id string) bool {
	for _, it := range n.items.Items() {
		if it.ID == id {
			return it.Read
		}
	}
	return false
}

// MarkRead marks id read locally, then on the server. The unread count
// drops at once and is restored if the server call fails.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	n.mu.Lock()
	changed := n.items.Update(func(it model.Notification) bool {
		return it.ID == id && !it.Read
	}, setRead(true)) > 0
	if changed {
		n.unread.Update(decrement(n.unread.Get()))
	}
	n.mu.Unlock()

	err := n.src.MarkNotificationRead(ctx, id)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		if changed {
			n.unread.Revert()
			n.items.Update(matchID(id), setRead(false))
		}
		n.logger.Warn("mark read failed, reverted", "id", id, "error", err)
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	if changed {
		n.unread.Confirm()
	}
	return nil
}

// Start begins polling the unread count.
func (n *Notifications) Start(ctx context.Context) error {
	return n.poller.Start(ctx)
}

// Refresh fetches the unread count now.
func (n *Notifications) Refresh(ctx context.Context) (int, error) {
	c, err := n.poller.Refresh(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh unread count: %w", err)
	}
	return c, nil
}

// Poller exposes the unread poller.
func (n *Notifications) Poller() *poller.Poller[int] {
	return n.poller
}

// Items returns the notification feed, newest first.
func (n *Notifications) Items() []model.Notification {
	return n.items.Items()
}

// Unread returns the visible unread count.
func (n *Notifications) Unread() int {
	return n.unread.Get()
}

// Snapshot returns the whole notifications view.
func (n *Notifications) Snapshot() NotificationsSnapshot {
	st := n.poller.State()
	u := n.unread.Snapshot()
	snap := NotificationsSnapshot{
		Items:    n.items.Items(),
		Unread:   u.Value,
		Pending:  u.Speculative,
		LastPoll: st.LastUpdate,
	}
	if st.Err != nil {
		snap.Error = st.Err.Error()
	}
	return snap
}

// Close unsubscribes from the router and stops polling.
func (n *Notifications) Close() {
	n.unsubscribe()
	n.poller.Close()
}

func (n *Notifications) unsubscribe() {
	for _, reg := range n.regs {
		reg.Unsubscribe()
	}
}

func matchID(id string) func(model.Notification) bool {
	return func(it model.Notification) bool { return it.ID == id }
}

func setRead(read bool) func(model.Notification) model.Notification {
	return func(it model.Notification) model.Notification {
		it.Read = read
		return it
	}
}

func decrement(c int) int {
	return max(c-1, 0)
}

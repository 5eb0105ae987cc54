package api

import (
	"context"
	"net/url"

	"github.com/rickgao/livesync/internal/model"
)

// ListNotifications fetches one page of notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) (Page[model.Notification], error) {
	var p Page[model.Notification]
	err := c.get(ctx, "/notifications/", pageQuery(page, pageSize), &p)
	return p, err
}

// GetUnreadCount returns the number of unread notifications.
func (c *Client) GetUnreadCount(ctx context.Context) (int, error) {
	var resp model.UnreadCount
	if err := c.get(ctx, "/notifications/unread-count/", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.post(ctx, "/notifications/"+url.PathEscape(id)+"/read/", nil, nil)
}

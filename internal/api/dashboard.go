package api

import (
	"context"

	"github.com/rickgao/livesync/internal/model"
)

// GetDashboardMetrics fetches the full dashboard metric snapshot.
func (c *Client) GetDashboardMetrics(ctx context.Context) (model.Metrics, error) {
	var m model.Metrics
	if err := c.get(ctx, "/dashboard/metrics/", nil, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = model.Metrics{}
	}
	return m, nil
}

// ListActivities fetches one page of the activity feed.
func (c *Client) ListActivities(ctx context.Context, page, pageSize int) (Page[model.Activity], error) {
	var p Page[model.Activity]
	err := c.get(ctx, "/dashboard/activities/", pageQuery(page, pageSize), &p)
	return p, err
}

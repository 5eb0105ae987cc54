package feed

import (
	"log/slog"

	"github.com/rickgao/livesync/internal/poller"
)

// Event types the aggregators subscribe to.
const (
	EventDashboardUpdate  = "dashboard_update"
	EventAlert            = "alert"
	EventActivity         = "activity"
	EventNotification     = "notification"
	EventNotificationRead = "notification_read"
)

// Feed caps.
const (
	DefaultAlertLimit        = 10
	DefaultActivityLimit     = 20
	DefaultNotificationLimit = 20
)

// Option configures an aggregator.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	pollOpts []poller.Option
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithPollerOptions passes options through to the aggregator's poller.
func WithPollerOptions(opts ...poller.Option) Option {
	return func(s *settings) { s.pollOpts = append(s.pollOpts, opts...) }
}

func newSettings(component string, opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", component)
	s.pollOpts = append([]poller.Option{poller.WithLogger(s.logger)}, s.pollOpts...)
	return s
}

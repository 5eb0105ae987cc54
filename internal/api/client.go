package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rickgao/livesync/internal/metrics"
)

// Session supplies bearer credentials and refreshes them after a 401.
//
// Refresh receives the token the failed request carried so concurrent
// failures can be coalesced into one refresh.
type Session interface {
	AccessToken() string
	Refresh(ctx context.Context, failedToken string) (string, error)
}

// Client provides access to the remote REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	session    Session
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.APIMetrics
	clock      clockwork.Clock

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		clock:        clockwork.NewRealClock(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration for idempotent requests.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithClock sets the clock driving retry backoff.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSession attaches bearer credentials and 401 refresh handling.
func WithSession(s Session) ClientOption {
	return func(c *Client) {
		c.session = s
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker opens the circuit after maxFailures consecutive
// network or server failures and probes again after openTimeout.
func WithCircuitBreaker(maxFailures uint32, openTimeout time.Duration) ClientOption {
	return func(c *Client) {
		if maxFailures == 0 {
			return
		}
		logger := c.logger
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "api",
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !countsAsOutage(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
}

// WithMetrics records round trips and refreshes on m.
func WithMetrics(m *metrics.APIMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

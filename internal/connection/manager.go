package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/livesync/internal/metrics"
)

// TokenSource supplies the bearer credential sent on the dial handshake.
type TokenSource interface {
	AccessToken() string
}

// StateListener observes state transitions.
type StateListener func(from, to State)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the WebSocket client constructor.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) { m.dial = d }
}

// WithClock sets the clock driving heartbeat and reconnect timers.
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records state and traffic on m.
func WithMetrics(cm *metrics.ConnectionMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = cm }
}

// WithTokenSource attaches a bearer token to every dial.
func WithTokenSource(ts TokenSource) ManagerOption {
	return func(m *Manager) { m.tokens = ts }
}

// OnStateChange registers a listener for state transitions.
// Listeners run outside the manager's lock.
func OnStateChange(fn StateListener) ManagerOption {
	return func(m *Manager) { m.listeners = append(m.listeners, fn) }
}

// link is one connection attempt and the channel it produced.
type link struct {
	client Client
	cancel context.CancelFunc
}

// Manager owns the push channel: connecting, heartbeat and reconnection.
type Manager struct {
	cfg       Config
	dial      Dialer
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *metrics.ConnectionMetrics
	tokens    TokenSource
	listeners []StateListener

	// Output to the Event Router
	out chan RawMessage

	wg sync.WaitGroup

	mu        sync.Mutex
	state     State
	attempts  int
	gen       uint64 // bumped by Connect and Disconnect; stale timers compare against it
	link      *link
	reconnect clockwork.Timer
	heartbeat clockwork.Ticker
	hbStop    chan struct{}
	closed    bool
}

// NewManager creates a Connection Manager in the disconnected state.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:   cfg,
		dial:  NewClient,
		clock: clockwork.NewRealClock(),
		state: StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "connection")
	m.out = make(chan RawMessage, cfg.BufferSize)
	m.metrics.SetState(string(m.state), allStates...)

	return m
}

// Connect opens the channel. It is a no-op while connecting or connected.
// The dial runs asynchronously; observe progress through State or a
// StateListener.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()

	if err := validateURL(m.cfg.URL); err != nil {
		from, changed := m.setStateLocked(StateError)
		m.mu.Unlock()

		m.logger.Error("cannot open push channel", "url", m.cfg.URL, "error", err)
		if changed {
			m.notify(from, StateError)
		}
		return
	}

	m.gen++
	stale := m.link
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		client: m.dial(m.clientConfig(), m.logger),
		cancel: cancel,
	}
	m.link = l
	from, changed := m.setStateLocked(StateConnecting)
	m.wg.Add(1)
	m.mu.Unlock()

	if stale != nil {
		stale.cancel()
		stale.client.Close()
	}
	if changed {
		m.notify(from, StateConnecting)
	}
	go m.run(ctx, l)
}

// Disconnect cancels any scheduled reconnection, stops the heartbeat and
// closes the channel. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	l := m.link
	m.link = nil
	from, changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if l != nil {
		l.cancel()
		l.client.Close()
		m.logger.Info("push channel disconnected")
	}
	if changed {
		m.notify(from, StateDisconnected)
	}
}

// SendMessage encodes payload as JSON and writes it. []byte and
// json.RawMessage are written as given. It reports false unless the
// channel is connected and the write succeeded.
func (m *Manager) SendMessage(payload any) bool {
	m.mu.Lock()
	if m.state != StateConnected || m.link == nil {
		m.mu.Unlock()
		m.metrics.IncSendFailures()
		return false
	}
	c := m.link.client
	m.mu.Unlock()

	data, err := encodeFrame(payload)
	if err != nil {
		m.logger.Warn("cannot encode outbound frame", "error", err)
		m.metrics.IncSendFailures()
		return false
	}
	if err := c.Send(data); err != nil {
		m.logger.Debug("send failed", "error", err)
		m.metrics.IncSendFailures()
		return false
	}
	return true
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnections scheduled since the last
// successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Messages returns the ordered inbound stream. It is closed by Close.
func (m *Manager) Messages() <-chan RawMessage {
	return m.out
}

// Close disconnects, waits for the connection goroutines and releases the
// inbound stream. The manager cannot be reused.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.Disconnect()
	m.wg.Wait()
	close(m.out)
}

func (m *Manager) clientConfig() ClientConfig {
	cfg := ClientConfig{
		URL:              m.cfg.URL,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
	if m.tokens != nil {
		if token := m.tokens.AccessToken(); token != "" {
			cfg.Header = http.Header{}
			cfg.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return cfg
}

// run dials and then pumps client events until the link ends.
func (m *Manager) run(ctx context.Context, l *link) {
	defer m.wg.Done()

	if err := l.client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.handleError(l, err)
		m.handleClose(l)
		return
	}
	if !m.handleOpen(l) {
		l.client.Close()
		return
	}

	events := l.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.handleClose(l)
				return
			}
			switch ev.Kind {
			case EventMessage:
				m.metrics.IncReceived()
				select {
				case m.out <- RawMessage{Data: ev.Data, ReceivedAt: ev.ReceivedAt}:
				case <-ctx.Done():
					return
				}
			case EventError:
				m.handleError(l, ev.Err)
			case EventClose:
				m.handleClose(l)
				return
			}
		}
	}
}

func (m *Manager) handleOpen(l *link) bool {
	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()
		return false
	}
	m.attempts = 0
	m.startHeartbeatLocked(l.client)
	from, changed := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("push channel connected", "url", m.cfg.URL)
	if changed {
		m.notify(from, StateConnected)
	}
	return true
}

// handleError records a transport error. Reconnection is left to the close
// that follows.
func (m *Manager) handleError(l *link, err error) {
	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()
		return
	}
	from, changed := m.setStateLocked(StateError)
	m.mu.Unlock()

	m.logger.Warn("push channel error", "error", err)
	if changed {
		m.notify(from, StateError)
	}
}

func (m *Manager) handleClose(l *link) {
	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.link = nil
	from, changed := m.setStateLocked(StateDisconnected)

	var delay time.Duration
	scheduled := false
	if m.cfg.Reconnect && !m.closed && m.attempts < m.cfg.MaxReconnectAttempts {
		delay = m.cfg.ReconnectInterval << m.attempts
		m.attempts++
		gen := m.gen
		m.reconnect = m.clock.AfterFunc(delay, func() { m.fireReconnect(gen) })
		scheduled = true
	}
	attempts := m.attempts
	m.mu.Unlock()

	l.cancel()
	l.client.Close()

	if scheduled {
		m.metrics.IncReconnects()
		m.logger.Info("push channel closed, reconnect scheduled",
			"attempt", attempts,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"delay", delay,
		)
	} else {
		m.logger.Info("push channel closed", "attempts", attempts)
	}
	if changed {
		m.notify(from, StateDisconnected)
	}
}

func (m *Manager) fireReconnect(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	m.mu.Unlock()

	m.Connect()
}

func (m *Manager) startHeartbeatLocked(c Client) {
	m.stopHeartbeatLocked()

	ticker := m.clock.NewTicker(m.cfg.HeartbeatInterval)
	stop := make(chan struct{})
	m.heartbeat = ticker
	m.hbStop = stop

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				// Heartbeat failures are swallowed; the read loop reports
				// a dead channel.
				if err := c.Send(heartbeatFrame); err != nil {
					m.logger.Debug("heartbeat send failed", "error", err)
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat == nil {
		return
	}
	m.heartbeat.Stop()
	close(m.hbStop)
	m.heartbeat = nil
	m.hbStop = nil
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnect == nil {
		return
	}
	m.reconnect.Stop()
	m.reconnect = nil
}

func (m *Manager) setStateLocked(to State) (State, bool) {
	from := m.state
	if from == to {
		return from, false
	}
	m.state = to
	m.metrics.SetState(string(to), allStates...)
	return from, true
}

func (m *Manager) notify(from, to State) {
	m.logger.Debug("state change", "from", from, "to", to)
	for _, fn := range m.listeners {
		fn(from, to)
	}
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

func encodeFrame(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrInvalidURL    = errors.New("invalid channel url")
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// State is the lifecycle state of the push channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var allStates = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateConnected),
	string(StateError),
}

func (s State) String() string { return string(s) }

// RawMessage is a frame from the Connection Manager to the Event Router.
type RawMessage struct {
	Data       []byte    // Raw frame bytes
	ReceivedAt time.Time // Local timestamp when the client read the frame
}

// EventKind identifies a ClientEvent.
type EventKind int

const (
	EventMessage EventKind = iota
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// ClientEvent is emitted by a Client while its channel is open.
// An abnormal end of the channel is reported as EventError followed by
// EventClose; a clean close frame yields EventClose alone.
type ClientEvent struct {
	Kind       EventKind
	Data       []byte
	ReceivedAt time.Time
	Err        error
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // ws:// or wss:// endpoint
	Header           http.Header   // Extra handshake headers (Authorization)
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Event channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// Config configures the Connection Manager.
type Config struct {
	URL                  string        // Push endpoint
	Reconnect            bool          // Schedule reconnection after a close
	ReconnectInterval    time.Duration // Base delay; attempt n waits base*2^n
	MaxReconnectAttempts int           // Automatic attempts before giving up
	HeartbeatInterval    time.Duration // Ping period while connected
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	BufferSize           int // Output message channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Reconnect:            true,
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1024,
	}
}

// withDefaults fills zero durations and sizes from DefaultConfig.
// Reconnect and MaxReconnectAttempts are taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// heartbeatFrame is sent every HeartbeatInterval while connected.
var heartbeatFrame = []byte(`{"type":"ping"}`)

package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoEventTypes   = errors.New("at least one event type is required")
	ErrAlreadyStarted = errors.New("router already started")
	errMissingType    = errors.New("missing type")
)

// MalformedEventError is reported for frames that are not valid events.
// Such frames are dropped.
type MalformedEventError struct {
	Raw []byte
	Err error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %v", e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// Event is one decoded push frame. It is never mutated after decoding.
type Event struct {
	Type       string
	Data       json.RawMessage
	Timestamp  time.Time
	ID         string // Empty when the frame carries no id
	ReceivedAt time.Time
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	Dispatched       int64 // Registration updates applied
	ParseErrors      int64
	Ignored          int64 // Valid events no registration accepted
}

// eventEnvelope is the wire shape {type, data, timestamp, id?}.
type eventEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
	ID        json.RawMessage `json:"id"`
}

// parseEvent decodes a frame. Timestamps are accepted as RFC 3339 strings
// or Unix milliseconds; anything else falls back to receivedAt.
func parseEvent(data []byte, receivedAt time.Time) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, &MalformedEventError{Raw: data, Err: err}
	}
	if env.Type == "" {
		return Event{}, &MalformedEventError{Raw: data, Err: errMissingType}
	}

	ev := Event{
		Type:       env.Type,
		Data:       env.Data,
		Timestamp:  receivedAt,
		ID:         scalarString(env.ID),
		ReceivedAt: receivedAt,
	}
	if ts, ok := parseTimestamp(env.Timestamp); ok {
		ev.Timestamp = ts
	}
	return ev, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, true
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), true
		}
		return time.Time{}, false
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

// scalarString renders a JSON string or number id as text.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

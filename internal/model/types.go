package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Session Types
// -----------------------------------------------------------------------------

// Credentials is the access/refresh token pair issued by the remote API.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// Valid reports whether both tokens are present.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// User is the signed-in user snapshot persisted with the session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// -----------------------------------------------------------------------------
// Dashboard Types
// -----------------------------------------------------------------------------

// Metrics is the free-form dashboard metric set. Push updates merge keys
// into it; poll snapshots replace it.
type Metrics map[string]any

// Clone returns a shallow copy.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Alert is a dashboard alert.
type Alert struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"` // "info", "warning", "critical"
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is an entry in the dashboard activity feed.
type Activity struct {
	ID        string    `json:"id"`
	Kind      string    `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// Notification Types
// -----------------------------------------------------------------------------

// Notification is a user notification.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// UnreadCount is the body of the unread-count endpoint.
type UnreadCount struct {
	Count int `json:"count"`
}

// NewID returns a fresh identifier for items that arrive without one.
func NewID() string {
	return uuid.NewString()
}

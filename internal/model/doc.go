// Package model defines shared data types used across the sync core.
//
// Conventions:
//   - Wire field names are snake_case JSON
//   - Timestamps are time.Time, RFC 3339 on the wire
//   - IDs are opaque strings; locally generated IDs are UUIDs
package model

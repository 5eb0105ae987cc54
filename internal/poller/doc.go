// Package poller implements the Polling Engine component.
//
// The Polling Engine:
//   - Calls a fetch function on a fixed interval (default 30s)
//   - Optionally fetches immediately on start
//   - Reads an interval override from stored preferences
//   - Keeps the last good data when a fetch fails
//   - Never runs more than one timer per instance
package poller

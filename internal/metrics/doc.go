// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Push channel state, reconnect attempts and message rates
//   - Event router throughput and malformed frames
//   - Poll and request outcomes with latencies
//   - Remote API status classes and credential refreshes
//
// Every collector group is registered on a caller supplied Registerer.
// A nil group is valid and records nothing, so components can run without
// metrics in tests.
package metrics

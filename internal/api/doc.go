// Package api provides the remote API client used by the sync core.
//
// Every request carries the session's bearer token when one exists. A 401
// response triggers a single credential refresh through the Session and one
// replay of the original request; a second 401 or a failed refresh surfaces
// as an auth RequestError.
//
// Idempotent GETs are retried with jittered exponential backoff on 5xx and
// 429. Optional client-side rate limiting and a circuit breaker guard the
// round trip.
//
// List endpoints share the paginated shape
//
//	{"results": [...], "count": N, "next": url|null, "previous": url|null}
//
// decoded into Page[T].
package api

// Package feed aggregates push events and polled snapshots into the views a
// client renders: dashboard metrics with alert and activity feeds, and a
// notification list with an unread counter.
//
// Push updates arrive through router registrations. Each aggregator also owns
// a poller whose snapshots are authoritative and replace what push updates
// accumulated.
package feed

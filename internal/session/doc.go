// Package session owns the process-wide session credential.
//
// The Manager restores the last persisted credential pair at startup, hands
// out the current access token and coordinates refreshes: concurrent 401s
// collapse into a single refresh call, and a caller whose failed token has
// already been replaced gets the new token without another refresh. An
// irrecoverable refresh failure clears the session and its persisted copy.
//
// Persistence is pluggable through Store: a JSON file for single-user CLIs
// and Redis for shared deployments.
package session

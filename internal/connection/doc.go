// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns at most one live WebSocket channel at a time
//   - Tracks state: disconnected, connecting, connected, error
//   - Sends a {"type":"ping"} heartbeat while connected
//   - Reconnects after base*2^attempt when the channel closes, up to a cap
//   - Forwards every inbound frame, in arrival order, to the Event Router
package connection

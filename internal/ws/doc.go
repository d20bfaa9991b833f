// Package ws provides the server side of a websocket connection: the upgrade
// handler, the per-connection session state machine and its heartbeat monitor.
//
// The package implements:
//   - Handler: Upgrades HTTP requests and starts one Session per connection
//   - Session: Owns a connection's lifecycle and dispatches inbound frames
//   - monitor: Pings the peer every interval and evicts it after the liveness timeout
//   - Transport: Frame-level view of a connection, backed by gorilla/websocket
//
// Every session increments the shared registry when it starts and decrements it
// exactly once when it terminates, whichever exit path is taken.
package ws

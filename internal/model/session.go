package model

import "time"

// SessionState represents the lifecycle state of a websocket session.
type SessionState string

const (
	SessionStateActive     SessionState = "active"
	SessionStateClosing    SessionState = "closing"
	SessionStateTerminated SessionState = "terminated"
)

// TerminationReason describes which exit path ended a session.
type TerminationReason string

const (
	ReasonNone             TerminationReason = ""
	ReasonClosed           TerminationReason = "closed"
	ReasonProtocolError    TerminationReason = "protocol_error"
	ReasonTransportError   TerminationReason = "transport_error"
	ReasonHeartbeatTimeout TerminationReason = "heartbeat_timeout"
	ReasonShutdown         TerminationReason = "shutdown"
)

// SessionInfo is a point-in-time view of a session, used for logging and diagnostics.
type SessionInfo struct {
	ID          string            `json:"id"`
	RemoteAddr  string            `json:"remoteAddr,omitempty"`
	State       SessionState      `json:"state"`
	Reason      TerminationReason `json:"reason,omitempty"`
	ConnectedAt time.Time         `json:"connectedAt"`
	LastSeen    time.Time         `json:"lastSeen"`
}

// Duration returns how long the session has been connected as of now.
func (s *SessionInfo) Duration(now time.Time) time.Duration {
	return now.Sub(s.ConnectedAt)
}

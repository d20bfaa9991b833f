package model

import "errors"

var (
	// ErrHeartbeatTimeout is the cancellation cause used when a peer stays silent longer than the liveness timeout.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrProtocolViolation is returned when a peer sends a frame the session cannot accept.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTransport wraps read and write failures on the underlying connection.
	ErrTransport = errors.New("transport error")

	// ErrSessionStarted is returned when Run is called on a session that already ran.
	ErrSessionStarted = errors.New("session already started")

	// ErrRegistryUnderflow is returned when a decrement would drive the visitor count below zero.
	ErrRegistryUnderflow = errors.New("registry count would become negative")

	// ErrInvalidConfig is returned when configuration values are inconsistent.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrServerShutdown is the cancellation cause used when the server stops accepting sessions.
	ErrServerShutdown = errors.New("server shutting down")
)

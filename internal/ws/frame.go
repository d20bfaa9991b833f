package ws

import (
	"context"
	"fmt"
)

// Opcode identifies a websocket frame type.
type Opcode int

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(%#x)", int(o))
	}
}

// Frame is one inbound or outbound websocket frame. Code and Reason are only
// meaningful for close frames; a zero Code means the close carried no status.
type Frame struct {
	Op      Opcode
	Payload []byte
	Code    int
	Reason  string
}

// Transport is the frame-level connection a Session drives.
type Transport interface {
	// ReadFrames delivers inbound frames to out in arrival order until the
	// connection fails or ctx is cancelled. It always returns a non-nil error.
	ReadFrames(ctx context.Context, out chan<- Frame) error

	// WriteControl sends a ping, pong or close frame. It is safe to call
	// concurrently with ReadFrames and with itself.
	WriteControl(f Frame) error

	// Close tears down the connection without a close handshake.
	Close() error
}

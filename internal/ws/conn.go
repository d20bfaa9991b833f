package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/remote-agent-terminal/pulse/internal/model"
)

// gorillaTransport adapts a *websocket.Conn to Transport. Control frames are
// surfaced through the connection's ping, pong and close handlers, which run on
// the reading goroutine, so frame order is preserved.
type gorillaTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

// NewTransport wraps an upgraded gorilla connection.
func NewTransport(conn *websocket.Conn, writeWait time.Duration) Transport {
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	return &gorillaTransport{conn: conn, writeWait: writeWait}
}

func (t *gorillaTransport) ReadFrames(ctx context.Context, out chan<- Frame) error {
	deliver := func(f Frame) error {
		select {
		case out <- f:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	// Replacing the default handlers stops gorilla from answering pings and
	// closes on its own; the session writes those replies.
	t.conn.SetPingHandler(func(data string) error {
		return deliver(Frame{Op: OpPing, Payload: []byte(data)})
	})
	t.conn.SetPongHandler(func(data string) error {
		return deliver(Frame{Op: OpPong, Payload: []byte(data)})
	})
	t.conn.SetCloseHandler(func(code int, text string) error {
		if code == websocket.CloseNoStatusReceived {
			code = 0
		}
		return deliver(Frame{Op: OpClose, Code: code, Reason: text})
	})

	for {
		messageType, r, err := t.conn.NextReader()
		if err != nil {
			return classifyReadError(err)
		}
		payload, err := io.ReadAll(r)
		if err != nil {
			return classifyReadError(err)
		}

		op := OpText
		if messageType == websocket.BinaryMessage {
			op = OpBinary
		}
		if err := deliver(Frame{Op: op, Payload: payload}); err != nil {
			return err
		}
	}
}

func (t *gorillaTransport) WriteControl(f Frame) error {
	deadline := time.Now().Add(t.writeWait)

	switch f.Op {
	case OpPing:
		return t.conn.WriteControl(websocket.PingMessage, f.Payload, deadline)
	case OpPong:
		return t.conn.WriteControl(websocket.PongMessage, f.Payload, deadline)
	case OpClose:
		var data []byte
		if f.Code != 0 {
			data = websocket.FormatCloseMessage(f.Code, f.Reason)
		}
		return t.conn.WriteControl(websocket.CloseMessage, data, deadline)
	default:
		return fmt.Errorf("%w: %s is not a control frame", model.ErrProtocolViolation, f.Op)
	}
}

func (t *gorillaTransport) Close() error {
	return t.conn.Close()
}

// classifyReadError separates framing violations from a lost connection.
// gorilla reports framing violations (unexpected continuation, reserved bits,
// bad opcodes) as plain errors, so anything that is not a close or network
// failure is treated as a protocol violation.
func classifyReadError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return fmt.Errorf("%w: %v", model.ErrTransport, err)
		}
		return err
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %v", model.ErrProtocolViolation, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", model.ErrTransport, err)
	}
	return fmt.Errorf("%w: %v", model.ErrProtocolViolation, err)
}

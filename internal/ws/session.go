package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/remote-agent-terminal/pulse/internal/model"
	"github.com/remote-agent-terminal/pulse/internal/observability"
	"github.com/remote-agent-terminal/pulse/internal/registry"
)

// SessionOptions holds what a Session needs at construction.
type SessionOptions struct {
	ID         string
	RemoteAddr string
	Conn       Transport
	Registry   *registry.Registry
	Metrics    *observability.Metrics
	Config     Config
}

// Session manages one upgraded connection: frame dispatch, liveness and the
// registry entry. Its mutable state is owned by the goroutine running Run.
type Session struct {
	id          string
	remoteAddr  string
	conn        Transport
	registry    *registry.Registry
	metrics     *observability.Metrics
	cfg         Config
	clock       clock
	log         zerolog.Logger
	connectedAt time.Time

	lastSeen atomic.Int64
	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.RWMutex
	state  model.SessionState
	reason model.TerminationReason
}

var errSessionStopped = errors.New("session stopped")

// exit describes why the run loop stopped.
type exit struct {
	reason model.TerminationReason
	err    error
}

// NewSession creates a Session in the active state with lastSeen set to now.
func NewSession(opts SessionOptions) *Session {
	return newSession(opts, realClock{})
}

func newSession(opts SessionOptions, clk clock) *Session {
	s := &Session{
		id:         opts.ID,
		remoteAddr: opts.RemoteAddr,
		conn:       opts.Conn,
		registry:   opts.Registry,
		metrics:    opts.Metrics,
		cfg:        opts.Config.withDefaults(),
		clock:      clk,
		done:       make(chan struct{}),
		state:      model.SessionStateActive,
	}
	s.log = log.With().Str("session", s.id).Str("remote", s.remoteAddr).Logger()
	s.connectedAt = clk.Now()
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Reason returns the exit path that terminated the session, or ReasonNone while it runs.
func (s *Session) Reason() model.TerminationReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// LastSeen returns when the peer last sent a ping or pong.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Done is closed once the session has terminated and released its registry entry.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Info returns a snapshot of the session for diagnostics.
func (s *Session) Info() model.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SessionInfo{
		ID:          s.id,
		RemoteAddr:  s.remoteAddr,
		State:       s.state,
		Reason:      s.reason,
		ConnectedAt: s.connectedAt,
		LastSeen:    s.LastSeen(),
	}
}

// Run drives the session until it terminates. It increments the registry on
// entry and decrements it exactly once before returning. The returned error is
// nil for a clean close or shutdown and describes the failure otherwise.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return model.ErrSessionStarted
	}

	visitors := s.registry.Increment()
	s.log.Info().Int64("visitors", visitors).Msg("session started")

	ctx, cancel := context.WithCancelCause(ctx)
	frames := make(chan Frame)
	readErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readPump(ctx, frames, readErr)
	}()
	go func() {
		defer wg.Done()
		s.newMonitor(cancel).run(ctx)
	}()

	ex := s.loop(ctx, frames, readErr)
	s.finalize(ex, cancel, &wg)
	return ex.err
}

func (s *Session) newMonitor(expire context.CancelCauseFunc) *monitor {
	return &monitor{
		interval: s.cfg.HeartbeatInterval,
		timeout:  s.cfg.HeartbeatTimeout,
		clock:    s.clock,
		lastSeen: s.LastSeen,
		ping: func() error {
			if err := s.conn.WriteControl(Frame{Op: OpPing}); err != nil {
				return err
			}
			s.metrics.RecordPing()
			return nil
		},
		expire: expire,
	}
}

// readPump forwards frames from the transport. The read error is sent only after
// the last frame was taken, so the loop never sees it ahead of a pending frame.
func (s *Session) readPump(ctx context.Context, frames chan<- Frame, readErr chan<- error) {
	err := s.conn.ReadFrames(ctx, frames)
	if err == nil {
		err = fmt.Errorf("%w: connection closed", model.ErrTransport)
	}
	readErr <- err
}

// loop waits for whichever comes first: an inbound frame, a read failure or cancellation.
func (s *Session) loop(ctx context.Context, frames <-chan Frame, readErr <-chan error) exit {
	for {
		select {
		case f := <-frames:
			if ex := s.dispatch(f); ex != nil {
				return *ex
			}
		case err := <-readErr:
			// A cancelled context also unblocks the reader; the cause wins.
			if ctx.Err() != nil {
				return s.cancelled(context.Cause(ctx))
			}
			if errors.Is(err, model.ErrProtocolViolation) {
				return exit{reason: model.ReasonProtocolError, err: err}
			}
			return exit{reason: model.ReasonTransportError, err: err}
		case <-ctx.Done():
			return s.cancelled(context.Cause(ctx))
		}
	}
}

// dispatch handles one inbound frame and returns a non-nil exit when the session must stop.
func (s *Session) dispatch(f Frame) *exit {
	switch f.Op {
	case OpText, OpBinary:
		s.log.Debug().Stringer("op", f.Op).Int("bytes", len(f.Payload)).Msg("data frame discarded")
		return nil

	case OpPing:
		s.touch()
		if err := s.conn.WriteControl(Frame{Op: OpPong, Payload: f.Payload}); err != nil {
			return &exit{
				reason: model.ReasonTransportError,
				err:    fmt.Errorf("%w: pong: %v", model.ErrTransport, err),
			}
		}
		return nil

	case OpPong:
		s.touch()
		return nil

	case OpClose:
		s.setState(model.SessionStateClosing)
		if err := s.conn.WriteControl(Frame{Op: OpClose, Code: f.Code, Reason: f.Reason}); err != nil {
			s.log.Debug().Err(err).Msg("close acknowledgement not delivered")
		}
		return &exit{reason: model.ReasonClosed}

	case OpContinuation:
		return &exit{
			reason: model.ReasonProtocolError,
			err:    fmt.Errorf("%w: unexpected continuation frame", model.ErrProtocolViolation),
		}

	default:
		return &exit{
			reason: model.ReasonProtocolError,
			err:    fmt.Errorf("%w: unsupported frame %s", model.ErrProtocolViolation, f.Op),
		}
	}
}

// cancelled maps a cancellation cause to an exit. Liveness and transport
// failures end without a close frame; anything else is a server shutdown.
func (s *Session) cancelled(cause error) exit {
	switch {
	case errors.Is(cause, model.ErrHeartbeatTimeout):
		return exit{reason: model.ReasonHeartbeatTimeout, err: cause}
	case errors.Is(cause, model.ErrTransport):
		return exit{reason: model.ReasonTransportError, err: cause}
	}

	s.setState(model.SessionStateClosing)
	goingAway := Frame{Op: OpClose, Code: websocket.CloseGoingAway, Reason: "server shutting down"}
	if err := s.conn.WriteControl(goingAway); err != nil {
		s.log.Debug().Err(err).Msg("going-away close not delivered")
	}
	return exit{reason: model.ReasonShutdown}
}

// finalize is the single termination step reached from every exit path.
func (s *Session) finalize(ex exit, cancel context.CancelCauseFunc, wg *sync.WaitGroup) {
	s.stopOnce.Do(func() {
		cancel(errSessionStopped)
		if err := s.conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close")
		}
		wg.Wait()

		visitors, err := s.registry.Decrement()
		if err != nil {
			s.log.Error().Err(err).Msg("registry decrement refused")
		}

		s.mu.Lock()
		s.state = model.SessionStateTerminated
		s.reason = ex.reason
		s.mu.Unlock()

		s.metrics.RecordTermination(string(ex.reason))

		event := s.log.Info()
		if ex.err != nil {
			event = s.log.Warn().Err(ex.err)
		}
		event.
			Str("reason", string(ex.reason)).
			Dur("duration", s.clock.Now().Sub(s.connectedAt)).
			Int64("visitors", visitors).
			Msg("session terminated")

		close(s.done)
	})
}

func (s *Session) touch() {
	s.lastSeen.Store(s.clock.Now().UnixNano())
}

func (s *Session) setState(state model.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

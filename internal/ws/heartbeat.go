package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/remote-agent-terminal/pulse/internal/model"
)

// monitor checks a session's liveness once per interval. It only reads the
// session's last-seen time; its sole way to act on the session is expire.
type monitor struct {
	interval time.Duration
	timeout  time.Duration
	clock    clock

	lastSeen func() time.Time
	ping     func() error
	expire   context.CancelCauseFunc
}

// run ticks until ctx is cancelled or the monitor expires the session.
func (m *monitor) run(ctx context.Context) {
	t := m.clock.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C():
			if !m.tick(ctx, now) {
				return
			}
		}
	}
}

// tick reports whether the monitor should keep running.
func (m *monitor) tick(ctx context.Context, now time.Time) bool {
	if ctx.Err() != nil {
		return false
	}

	// A timed-out peer is dropped without a ping on this tick.
	if elapsed := now.Sub(m.lastSeen()); elapsed > m.timeout {
		m.expire(fmt.Errorf("%w: peer silent for %s", model.ErrHeartbeatTimeout, elapsed.Round(time.Millisecond)))
		return false
	}

	if err := m.ping(); err != nil {
		m.expire(fmt.Errorf("%w: ping: %v", model.ErrTransport, err))
		return false
	}
	return true
}

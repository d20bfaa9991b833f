package ws

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/remote-agent-terminal/pulse/internal/registry"
)

// exit paths a generated session takes
const (
	exitClose = iota
	exitContinuation
	exitReadError
	exitTimeout
	exitShutdown
)

// A ping with payload P yields exactly one pong with payload P and refreshes lastSeen.
func TestPingPongEchoProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Control frame payloads are limited to 125 bytes.
	payloadGen := gen.SliceOf(gen.UInt8()).Map(func(b []uint8) []byte {
		if len(b) > 125 {
			b = b[:125]
		}
		return b
	})

	properties.Property("ping payload is echoed in a single pong", prop.ForAll(
		func(payload []byte) bool {
			h := startHarness(t, nil, DefaultConfig())
			defer func() {
				h.transport.send(t, Frame{Op: OpClose})
				h.transport.expectWrite(t)
				h.wait(t)
			}()

			now := h.clock.Advance(time.Second)
			h.transport.send(t, Frame{Op: OpPing, Payload: payload})

			pong := h.transport.expectWrite(t)
			if pong.Op != OpPong || !bytes.Equal(pong.Payload, payload) {
				return false
			}
			select {
			case extra := <-h.transport.writes:
				t.Logf("unexpected extra write: %s", extra.Op)
				return false
			case <-time.After(10 * time.Millisecond):
			}
			return h.session.LastSeen().Equal(now)
		},
		payloadGen,
	))

	properties.TestingRun(t)
}

// However sessions exit, the registry returns to zero and never over-counts.
func TestRegistryBalanceAcrossExitPathsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("registry converges to zero for any mix of exits", prop.ForAll(
		func(exits []int) bool {
			reg := registry.New()
			harnesses := make([]*harness, len(exits))
			for i := range exits {
				harnesses[i] = startHarness(t, reg, DefaultConfig())
			}

			if reg.Snapshot() != int64(len(exits)) {
				t.Logf("expected %d live sessions, got %d", len(exits), reg.Snapshot())
				return false
			}

			var wg sync.WaitGroup
			finished := make([]bool, len(exits))
			for i, path := range exits {
				wg.Add(1)
				go func(i int, h *harness, path int) {
					defer wg.Done()
					finished[i] = terminate(h, path)
				}(i, harnesses[i], path)
			}
			wg.Wait()

			for i, ok := range finished {
				if !ok {
					t.Logf("session %d (exit path %d) did not terminate", i, exits[i])
					return false
				}
			}

			if reg.Snapshot() != 0 {
				t.Logf("registry did not converge: %d", reg.Snapshot())
				return false
			}
			return reg.Accepted() == uint64(len(exits)) && reg.Peak() == int64(len(exits))
		},
		gen.SliceOf(gen.IntRange(exitClose, exitShutdown)),
	))

	properties.TestingRun(t)
}

// terminate drives one harness down the given exit path and reports whether Run returned.
// It runs off the test goroutine, so it never calls Fatal.
func terminate(h *harness, path int) bool {
	defer h.cancel()

	switch path {
	case exitClose:
		h.transport.in <- Frame{Op: OpClose, Code: 1000}
	case exitContinuation:
		h.transport.in <- Frame{Op: OpContinuation}
	case exitReadError:
		h.transport.readErr <- context.DeadlineExceeded
	case exitTimeout:
		h.ticker.fire(h.clock.Advance(DefaultHeartbeatTimeout + time.Second))
	case exitShutdown:
		h.cancel()
	}

	select {
	case <-h.result:
		return true
	case <-time.After(waitTimeout):
		return false
	}
}

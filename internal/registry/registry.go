// Package registry tracks the number of live websocket sessions in the process.
package registry

import (
	"sync/atomic"

	"github.com/remote-agent-terminal/pulse/internal/model"
)

// Registry is a process-wide counter of active sessions.
// All methods are safe for concurrent use without external locking.
type Registry struct {
	count    atomic.Int64
	accepted atomic.Uint64
	peak     atomic.Int64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Increment records a session start and returns the new count.
func (r *Registry) Increment() int64 {
	n := r.count.Add(1)
	r.accepted.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return n
}

// Decrement records a session stop and returns the new count.
// A decrement that would make the count negative is refused.
func (r *Registry) Decrement() (int64, error) {
	for {
		n := r.count.Load()
		if n <= 0 {
			return n, model.ErrRegistryUnderflow
		}
		if r.count.CompareAndSwap(n, n-1) {
			return n - 1, nil
		}
	}
}

// Snapshot returns the current number of active sessions. The value may be stale
// by the time the caller observes it.
func (r *Registry) Snapshot() int64 {
	return r.count.Load()
}

// Accepted returns the total number of sessions ever started.
func (r *Registry) Accepted() uint64 {
	return r.accepted.Load()
}

// Peak returns the highest count observed.
func (r *Registry) Peak() int64 {
	return r.peak.Load()
}

package ws

import (
	"fmt"
	"time"

	"github.com/remote-agent-terminal/pulse/internal/model"
)

const (
	// How often the server pings the peer.
	DefaultHeartbeatInterval = 5 * time.Second

	// How long the peer may stay silent before it is dropped. Must exceed the interval.
	DefaultHeartbeatTimeout = 10 * time.Second

	// Time allowed to write a control frame to the peer.
	DefaultWriteWait = 10 * time.Second

	// Maximum message size allowed from peer.
	DefaultReadLimit = 8192
)

// Config holds the per-session settings shared by every connection the Handler accepts.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	WriteWait         time.Duration
	ReadLimit         int64
	ReadBufferSize    int
	WriteBufferSize   int

	// AllowedOrigins restricts browser origins allowed to upgrade. Empty allows all.
	AllowedOrigins []string
}

// DefaultConfig returns the reference heartbeat timing: ping every 5s, drop after 10s of silence.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		WriteWait:         DefaultWriteWait,
		ReadLimit:         DefaultReadLimit,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
	}
}

// Validate checks that at least one ping round-trip fits inside the timeout.
func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", model.ErrInvalidConfig)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("%w: heartbeat timeout (%s) must exceed interval (%s)",
			model.ErrInvalidConfig, c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: write wait must be positive", model.ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = d.WriteWait
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	return c
}

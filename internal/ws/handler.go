package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/remote-agent-terminal/pulse/internal/model"
	"github.com/remote-agent-terminal/pulse/internal/observability"
	"github.com/remote-agent-terminal/pulse/internal/registry"
)

// Handler upgrades HTTP requests to websocket sessions bound to one shared Registry.
type Handler struct {
	upgrader websocket.Upgrader
	registry *registry.Registry
	metrics  *observability.Metrics
	cfg      Config

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// NewHandler creates a Handler. Zero fields in cfg take their defaults.
func NewHandler(reg *registry.Registry, metrics *observability.Metrics, cfg Config) *Handler {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancelCause(context.Background())

	h := &Handler{
		registry: reg,
		metrics:  metrics,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Registry returns the shared session counter.
func (h *Handler) Registry() *registry.Registry {
	return h.registry
}

// HandleConnection upgrades the request and starts a Session on its own goroutine.
// On handshake failure the HTTP error has already been written, no session is
// created and the registry is untouched.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return model.ErrServerShutdown
	}
	h.sessions.Add(1)
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sessions.Done()
		h.metrics.RecordUpgradeFailure()
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return fmt.Errorf("upgrade: %w", err)
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	session := NewSession(SessionOptions{
		ID:         uuid.NewString(),
		RemoteAddr: r.RemoteAddr,
		Conn:       NewTransport(conn, h.cfg.WriteWait),
		Registry:   h.registry,
		Metrics:    h.metrics,
		Config:     h.cfg,
	})

	go func() {
		defer h.sessions.Done()
		session.Run(h.ctx)
	}()
	return nil
}

// Close stops accepting upgrades, asks every running session to go away and
// waits for all of them to release their registry entries.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel(model.ErrServerShutdown)
	h.sessions.Wait()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

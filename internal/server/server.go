// Package server wires the HTTP routes, middleware and listener around the
// websocket session handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/remote-agent-terminal/pulse/api/handlers"
	"github.com/remote-agent-terminal/pulse/internal/config"
	"github.com/remote-agent-terminal/pulse/internal/observability"
	"github.com/remote-agent-terminal/pulse/internal/registry"
	"github.com/remote-agent-terminal/pulse/internal/ws"
)

const defaultShutdownTimeout = 10 * time.Second

// Server serves the upgrade and status endpoints for one shared Registry.
type Server struct {
	cfg      config.Config
	registry *registry.Registry
	metrics  *observability.Metrics
	sessions *ws.Handler
	router   *gin.Engine
}

// New builds a Server. The registry is shared by every session the server accepts.
func New(cfg config.Config, reg *registry.Registry) *Server {
	metrics := observability.NewMetrics(func() float64 { return float64(reg.Snapshot()) })
	sessions := ws.NewHandler(reg, metrics, ws.Config{
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout,
		WriteWait:         cfg.Heartbeat.WriteWait,
		ReadLimit:         cfg.WebSocket.ReadLimit,
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	})

	s := &Server{
		cfg:      cfg,
		registry: reg,
		metrics:  metrics,
		sessions: sessions,
		router:   gin.New(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(s.metrics.RequestMetricsMiddleware())
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	status := r.Group("/")
	status.Use(cors.New(corsConfig(s.cfg.Server.CorsOrigins)))
	handlers.NewStatusHandler(s.registry).RegisterRoutes(status)
	status.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	upgrades := r.Group("/")
	upgrades.Use(UpgradeLimiter(s.cfg.Server.UpgradeRate, s.cfg.Server.UpgradeBurst))
	handlers.NewWebSocketHandler(s.sessions).RegisterRoutes(upgrades)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the shared session counter.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops accepting,
// sends every session a going-away close and waits for them to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if n := s.cfg.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", ln.Addr().String()).
			Int("max_connections", s.cfg.Server.MaxConnections).
			Dur("heartbeat_interval", s.cfg.Heartbeat.Interval).
			Dur("heartbeat_timeout", s.cfg.Heartbeat.Timeout).
			Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Info().Int64("visitors", s.registry.Snapshot()).Msg("shutting down server")
		err := srv.Shutdown(shutdownCtx)
		s.sessions.Close()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

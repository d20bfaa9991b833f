package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/remote-agent-terminal/pulse/internal/config"
	"github.com/remote-agent-terminal/pulse/internal/logging"
	"github.com/remote-agent-terminal/pulse/internal/registry"
	"github.com/remote-agent-terminal/pulse/internal/server"
)

func main() {
	path := config.PathFromEnv("")
	cfg, err := config.Load(path)
	if err != nil {
		logging.ConfigureRuntime("pulse", "info")
		log.Fatal().Err(err).Str("path", path).Msg("load config")
	}
	logging.ConfigureRuntime("pulse", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, registry.New())
	log.Info().
		Str("addr", cfg.Server.Addr).
		Dur("heartbeat_interval", cfg.Heartbeat.Interval).
		Dur("heartbeat_timeout", cfg.Heartbeat.Timeout).
		Int("max_connections", cfg.Server.MaxConnections).
		Msg("starting server")

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Int64("visitors", srv.Registry().Snapshot()).Msg("server stopped")
}

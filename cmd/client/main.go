package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remote-agent-terminal/pulse/internal/client"
	"github.com/remote-agent-terminal/pulse/internal/logging"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/ws", "websocket endpoint")
	pingEvery := flag.Duration("ping", 5*time.Second, "ping interval (0 disables)")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.ConfigureRuntime("pulse-client", *level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Config{URL: *url, PingInterval: *pingEvery})
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}

	if err := c.Run(ctx, readLines(ctx)); err != nil {
		log.Fatal().Err(err).Msg("connection lost")
	}
}

// readLines forwards stdin lines until EOF or cancellation.
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("stdin")
		}
	}()
	return lines
}

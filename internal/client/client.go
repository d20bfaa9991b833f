// Package client implements a command-line websocket peer: it forwards input
// lines as text frames, pings the server periodically and logs what it receives.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PingCommand is the input line that sends a ping instead of a text frame.
const PingCommand = "ping"

// Config holds client settings.
type Config struct {
	URL string
	// PingInterval is how often a ping is sent; 0 disables periodic pings.
	PingInterval time.Duration
	WriteWait    time.Duration

	// OnText is called for every text frame from the server.
	OnText func(text string)
	// OnPong is called for every pong from the server.
	OnPong func(payload string)
}

// Client is a connected peer. Only Run writes data frames.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	log  zerolog.Logger
}

// Dial connects to cfg.URL.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		cfg:  cfg,
		conn: conn,
		log:  log.With().Str("url", cfg.URL).Logger(),
	}
	conn.SetPongHandler(func(data string) error {
		c.log.Debug().Str("payload", data).Msg("pong")
		if c.cfg.OnPong != nil {
			c.cfg.OnPong(data)
		}
		return nil
	})
	c.log.Info().Int("status", resp.StatusCode).Msg("connected")
	return c, nil
}

// Run sends input lines and periodic pings until ctx is cancelled, input is
// closed or the connection fails. On cancellation it performs a close handshake.
func (c *Client) Run(ctx context.Context, input <-chan string) error {
	defer c.conn.Close()

	readErr := make(chan error, 1)
	go c.readLoop(readErr)

	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		t := time.NewTicker(c.cfg.PingInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case line, ok := <-input:
			if !ok {
				return c.close(readErr)
			}
			if err := c.send(line); err != nil {
				return err
			}
		case <-tick:
			if err := c.ping(); err != nil {
				return err
			}
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info().Err(err).Msg("server closed connection")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case <-ctx.Done():
			return c.close(readErr)
		}
	}
}

func (c *Client) send(line string) error {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}
	if line == PingCommand {
		return c.ping()
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) ping() error {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// close sends a normal closure and waits briefly for the server's acknowledgement.
func (c *Client) close(readErr <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait)); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return fmt.Errorf("close: %w", err)
	}

	select {
	case err := <-readErr:
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			c.log.Debug().Err(err).Msg("close acknowledgement")
		}
	case <-time.After(c.cfg.WriteWait):
		c.log.Warn().Msg("no close acknowledgement from server")
	}
	return nil
}

func (c *Client) readLoop(readErr chan<- error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		if messageType == websocket.TextMessage {
			c.log.Info().Str("text", string(data)).Msg("server")
			if c.cfg.OnText != nil {
				c.cfg.OnText(string(data))
			}
		}
	}
}

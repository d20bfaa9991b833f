package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/pulse/internal/config"
	"github.com/remote-agent-terminal/pulse/internal/logging"
	"github.com/remote-agent-terminal/pulse/internal/registry"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.ConfigureTests()
	os.Exit(m.Run())
}

type running struct {
	server *Server
	base   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startServer(t *testing.T, mutate func(*config.Config)) *running {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		server: New(cfg, registry.New()),
		base:   "http://" + ln.Addr().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		r.err = r.server.Serve(ctx, ln)
		close(r.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func (r *running) wsURL() string {
	return "ws" + strings.TrimPrefix(r.base, "http") + "/ws"
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_StatusMetricsAndShutdown(t *testing.T) {
	r := startServer(t, nil)
	client := &http.Client{Timeout: 2 * time.Second}

	code, body := get(t, client, r.base+"/count")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Visitors: 0", body)

	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		resp, err := client.Get(r.base + "/count")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == "Visitors: 1"
	}, 2*time.Second, 5*time.Millisecond)

	_, metrics := get(t, client, r.base+"/metrics")
	require.Contains(t, metrics, "pulse_session_active 1")

	code, body = get(t, client, r.base+"/health")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"visitors":1`)

	r.cancel()
	select {
	case <-r.done:
		require.NoError(t, r.err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	require.Equal(t, int64(0), r.server.Registry().Snapshot())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "expected going-away close, got %v", err)
}

func TestServer_MaxConnections(t *testing.T) {
	r := startServer(t, func(cfg *config.Config) {
		cfg.Server.MaxConnections = 1
	})

	first, _, err := websocket.DefaultDialer.Dial(r.wsURL(), nil)
	require.NoError(t, err)

	dialer := websocket.Dialer{HandshakeTimeout: 200 * time.Millisecond}
	_, _, err = dialer.Dial(r.wsURL(), nil)
	require.Error(t, err, "second connection should wait for a free slot")

	first.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	first.Close()

	require.Eventually(t, func() bool {
		conn, _, err := dialer.Dial(r.wsURL(), nil)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServer_CorsOnStatusRoutes(t *testing.T) {
	r := startServer(t, func(cfg *config.Config) {
		cfg.Server.CorsOrigins = []string{"https://status.example"}
	})

	req, err := http.NewRequest(http.MethodGet, r.base+"/count", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://status.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://status.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RunRejectsBadAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "256.0.0.1:99999"

	err := New(cfg, registry.New()).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen")
}

func TestUpgradeLimiter(t *testing.T) {
	r := gin.New()
	r.Use(UpgradeLimiter(1, 1))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestUpgradeLimiter_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(UpgradeLimiter(0, 0))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

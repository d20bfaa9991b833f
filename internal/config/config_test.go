package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/pulse/internal/model"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5*time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 10*time.Second, cfg.Heartbeat.Timeout)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoad_TomlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.toml")
	data := `
[server]
addr = ":9090"
max_connections = 16
cors_origins = ["https://status.example"]

[heartbeat]
interval = "2s"
timeout = "7s"

[websocket]
read_limit = 4096
allowed_origins = ["https://app.example"]

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 16, cfg.Server.MaxConnections)
	require.Equal(t, []string{"https://status.example"}, cfg.Server.CorsOrigins)
	require.Equal(t, 2*time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 7*time.Second, cfg.Heartbeat.Timeout)
	require.Equal(t, 10*time.Second, cfg.Heartbeat.WriteWait, "unset keys keep defaults")
	require.Equal(t, int64(4096), cfg.WebSocket.ReadLimit)
	require.Equal(t, []string{"https://app.example"}, cfg.WebSocket.AllowedOrigins)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr = "), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "config parse failed")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAddr:              "0.0.0.0:8081",
		EnvMaxConnections:    "2",
		EnvUpgradeRate:       "12.5",
		EnvHeartbeatInterval: "1s",
		EnvHeartbeatTimeout:  "3s",
		EnvAllowedOrigins:    "https://a.example, https://b.example,",
		EnvLogLevel:          "warn",
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, func(k string) string { return env[k] }))

	require.Equal(t, "0.0.0.0:8081", cfg.Server.Addr)
	require.Equal(t, 2, cfg.Server.MaxConnections)
	require.Equal(t, 12.5, cfg.Server.UpgradeRate)
	require.Equal(t, time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 3*time.Second, cfg.Heartbeat.Timeout)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for _, key := range []string{EnvMaxConnections, EnvUpgradeRate, EnvHeartbeatInterval, EnvHeartbeatTimeout} {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := ApplyEnv(&cfg, func(k string) string {
				if k == key {
					return "not-a-number"
				}
				return ""
			})
			require.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = " " }},
		{"negative connections", func(c *Config) { c.Server.MaxConnections = -1 }},
		{"negative upgrade rate", func(c *Config) { c.Server.UpgradeRate = -1 }},
		{"zero interval", func(c *Config) { c.Heartbeat.Interval = 0 }},
		{"timeout equals interval", func(c *Config) { c.Heartbeat.Timeout = c.Heartbeat.Interval }},
		{"timeout below interval", func(c *Config) { c.Heartbeat.Timeout = time.Second }},
		{"negative read limit", func(c *Config) { c.WebSocket.ReadLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, model.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	require.Equal(t, "pulse.toml", PathFromEnv("pulse.toml"))

	t.Setenv(EnvConfigPath, "/etc/pulse.toml")
	require.Equal(t, "/etc/pulse.toml", PathFromEnv("pulse.toml"))
}

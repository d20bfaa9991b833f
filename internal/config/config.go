// Package config loads server settings from an optional TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/remote-agent-terminal/pulse/internal/model"
)

// Environment variables that override file values.
const (
	EnvConfigPath        = "PULSE_CONFIG"
	EnvAddr              = "PULSE_ADDR"
	EnvMaxConnections    = "PULSE_MAX_CONNECTIONS"
	EnvUpgradeRate       = "PULSE_UPGRADE_RATE"
	EnvHeartbeatInterval = "PULSE_HEARTBEAT_INTERVAL"
	EnvHeartbeatTimeout  = "PULSE_HEARTBEAT_TIMEOUT"
	EnvAllowedOrigins    = "PULSE_ALLOWED_ORIGINS"
	EnvLogLevel          = "PULSE_LOG_LEVEL"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// MaxConnections caps concurrently open connections; 0 means unlimited.
	MaxConnections int `toml:"max_connections"`
	// UpgradeRate limits websocket upgrades per second; 0 disables the limit.
	UpgradeRate     float64       `toml:"upgrade_rate"`
	UpgradeBurst    int           `toml:"upgrade_burst"`
	CorsOrigins     []string      `toml:"cors_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type HeartbeatConfig struct {
	Interval  time.Duration `toml:"interval"`
	Timeout   time.Duration `toml:"timeout"`
	WriteWait time.Duration `toml:"write_wait"`
}

type WebSocketConfig struct {
	ReadLimit       int64    `toml:"read_limit"`
	ReadBufferSize  int      `toml:"read_buffer_size"`
	WriteBufferSize int      `toml:"write_buffer_size"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the reference settings: 127.0.0.1:8080, ping every 5s, drop after 10s.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			MaxConnections:  1024,
			UpgradeBurst:    20,
			ShutdownTimeout: 10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval:  5 * time.Second,
			Timeout:   10 * time.Second,
			WriteWait: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadLimit:       8192,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PathFromEnv returns the config file named by PULSE_CONFIG, or def.
func PathFromEnv(def string) string {
	if value := os.Getenv(EnvConfigPath); value != "" {
		return value
	}
	return def
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if _, err := toml.Decode(string(data), out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any PULSE_* variables returned by getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv(EnvMaxConnections); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", model.ErrInvalidConfig, EnvMaxConnections, v, err)
		}
		cfg.Server.MaxConnections = n
	}
	if v := getenv(EnvUpgradeRate); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", model.ErrInvalidConfig, EnvUpgradeRate, v, err)
		}
		cfg.Server.UpgradeRate = r
	}
	if v := getenv(EnvHeartbeatInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", model.ErrInvalidConfig, EnvHeartbeatInterval, v, err)
		}
		cfg.Heartbeat.Interval = d
	}
	if v := getenv(EnvHeartbeatTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", model.ErrInvalidConfig, EnvHeartbeatTimeout, v, err)
		}
		cfg.Heartbeat.Timeout = d
	}
	if v := getenv(EnvAllowedOrigins); v != "" {
		cfg.WebSocket.AllowedOrigins = splitList(v)
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is required", model.ErrInvalidConfig)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("%w: server.max_connections must not be negative", model.ErrInvalidConfig)
	}
	if c.Server.UpgradeRate < 0 {
		return fmt.Errorf("%w: server.upgrade_rate must not be negative", model.ErrInvalidConfig)
	}
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("%w: heartbeat.interval must be positive", model.ErrInvalidConfig)
	}
	if c.Heartbeat.Timeout <= c.Heartbeat.Interval {
		return fmt.Errorf("%w: heartbeat.timeout (%s) must exceed heartbeat.interval (%s)",
			model.ErrInvalidConfig, c.Heartbeat.Timeout, c.Heartbeat.Interval)
	}
	if c.WebSocket.ReadLimit < 0 {
		return fmt.Errorf("%w: websocket.read_limit must not be negative", model.ErrInvalidConfig)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

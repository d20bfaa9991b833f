// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

// ConfigureRuntime installs the console logger used by the binaries.
func ConfigureRuntime(app, level string) {
	Configure(ProfileRuntime, app, level, os.Stdout)
}

// ConfigureTests installs a debug logger without timestamps.
func ConfigureTests() {
	Configure(ProfileTest, "test", "", os.Stderr)
}

// Configure sets the global logger once; later calls are ignored.
func Configure(profile Profile, app, level string, out io.Writer) {
	configureOnce.Do(func() {
		log.Logger = New(profile, app, level, out)
		zerolog.SetGlobalLevel(log.Logger.GetLevel())
	})
}

// New builds a logger without touching global state.
func New(profile Profile, app, level string, out io.Writer) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	lvl := zerolog.InfoLevel
	if profile == ProfileTest {
		lvl = zerolog.DebugLevel
		writer.NoColor = true
		writer.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	if parsed, ok := ParseLevel(level); ok {
		lvl = parsed
	}

	ctx := zerolog.New(writer).Level(lvl).With().Timestamp()
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level. Unknown or empty names report false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

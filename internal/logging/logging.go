// Package logging configures the process-wide zerolog logger that the cmd
// entrypoints build and hand to the client, server and admin packages,
// following the teacher's env-var-driven,
// sync.Once-guarded configuration shape.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "CROSSSOCK_LOG_LEVEL"
	EnvLogNoColor = "CROSSSOCK_LOG_NOCOLOR"
)

// Profile selects a logging preset.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

// ConfigureRuntime installs the runtime logging preset as the package-level
// logger, honoring environment overrides. Safe to call more than once;
// only the first call takes effect.
func ConfigureRuntime(app string) zerolog.Logger {
	return configure(app, ProfileRuntime)
}

// ConfigureTests installs a debug-level, uncolored preset suited to test output.
func ConfigureTests(app string) zerolog.Logger {
	return configure(app, ProfileTest)
}

func configure(app string, profile Profile) zerolog.Logger {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		noColor := false
		if profile == ProfileTest {
			level = zerolog.DebugLevel
			noColor = true
		}
		if v, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = v
		}
		if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
			noColor = v
		}

		out := os.Stdout
		writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		if noColor || !isatty.IsTerminal(out.Fd()) {
			writer.NoColor = true
		} else {
			writer.Out = colorable.NewColorable(out)
		}

		log.Logger = zerolog.New(writer).
			Level(level).
			With().
			Timestamp().
			Logger()
	})
	return log.Logger.With().Str("app", app).Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		return false, false
	}
}

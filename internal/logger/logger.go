package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. Unknown levels fall back to info.
func Init(level string, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithService tags every subsequent global log line with the binary's identity.
func WithService(name, env string) {
	log.Logger = log.Logger.With().Str("service", name).Str("env", env).Logger()
}

func Get() zerolog.Logger {
	return log.Logger
}

// For returns the global logger tagged with a component name.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// Nop is for tests and tools that want silence.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

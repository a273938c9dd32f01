package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line.
const ServiceName = "campaign-dispatch"

// New returns the service logger. Development gets a console writer at debug
// level, everything else JSON at info. A valid level overrides the default.
func New(appEnv, level string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, level)
}

func newLogger(out io.Writer, appEnv, level string) zerolog.Logger {
	env := strings.ToLower(strings.TrimSpace(appEnv))
	isDev := env == "development" || env == "dev"

	lvl := zerolog.InfoLevel
	if isDev {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	w := out
	if isDev {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = out
			cw.TimeFormat = "2006-01-02 15:04:05"
		})
	}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", ServiceName).
		Str("env", env).
		Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard)
}

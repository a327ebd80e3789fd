// Package logger configures the structured logger used across tradebook.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output (development)
}

// New creates the service logger. Unknown level strings fall back to info so
// a typo in LOG_LEVEL never silences the journal. Caller information is only
// attached in pretty mode; production output stays compact.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	ctx := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "tradebook")
	if cfg.Pretty {
		ctx = ctx.Caller()
	}

	return ctx.Logger()
}

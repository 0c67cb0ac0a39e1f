// Package logger builds zerolog loggers and carries them in a context.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New creates a console logger at info level writing to stderr.
func New() zerolog.Logger {
	return NewWithLevel("info", false)
}

// NewWithLevel creates a logger at the named level writing to stderr.
// Unknown levels fall back to info. When json is false output goes through
// the console writer.
func NewWithLevel(level string, json bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if !json {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, level)
}

// NewWithWriter creates a logger at the named level writing JSON to w.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()
}

// WithContext returns a copy of ctx carrying log.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger stored in ctx, or a default console
// logger when there is none.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return log
	}
	return New()
}

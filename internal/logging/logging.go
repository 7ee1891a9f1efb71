// Package logging configures the structured logger shared by the server,
// the CLI commands and map sessions. Loggers travel through context.Context.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates a logger with timestamp formatting ("15:04:05.00").
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// ForVerbosity creates a stderr logger at info, or debug when verbose.
func ForVerbosity(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return New(os.Stderr, level)
}

// Discard is a logger that drops everything; handy in tests.
func Discard() *log.Logger {
	return New(io.Discard, log.FatalLevel)
}

type ctxKey int

const loggerKey ctxKey = 0

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the context's logger, or log.Default().
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

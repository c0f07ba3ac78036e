// Package logging holds the small set of log/slog helpers shared by every
// metrosign component. Loggers travel through contexts so that a fetch started
// from the run loop and a fetch started from the status API carry the right
// "component" attribute.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type loggerKey struct{}

// NewLogger builds the process logger. Production uses JSON output, every
// other environment uses the human readable text handler.
func NewLogger(w io.Writer, json bool, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// LogError logs msg at error level with the error attached.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := append([]any{slog.Any("error", err)}, attrs...)
	logger.Error(msg, args...)
}

// LogOperation logs a named operation at info level. Operation names are
// snake_case so they can be grepped in JSON logs.
func LogOperation(logger *slog.Logger, operation string, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := append([]any{slog.String("operation", operation)}, attrs...)
	logger.Info(operation, args...)
}

// LogHTTPRequest logs a served HTTP request.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMs float64, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := append([]any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs),
	}, attrs...)
	logger.Info("http_request", args...)
}

// SafeCloseWithLogging closes c and logs, rather than returns, any failure.
// Intended for defer statements.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", resource))
	}
}

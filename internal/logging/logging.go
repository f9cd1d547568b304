// Package logging provides structured logging for the analysis service
package logging

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const (
	queryIDKey contextKey = "query_id"
	loggerKey  contextKey = "logger"
)

// New creates a structured logger. Production environments log JSON for the
// collector; everything else logs human-readable text.
func New(level, env string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Component returns a child logger tagged with the owning subsystem, e.g.
// "store" or "scoring".
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

// WithQueryID adds an analysis query ID to the context
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

// QueryID extracts the analysis query ID from context
func QueryID(ctx context.Context) string {
	if id, ok := ctx.Value(queryIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L is a convenience function to get a logger with query context
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	if id := QueryID(ctx); id != "" {
		return logger.With("query_id", id)
	}
	return logger
}

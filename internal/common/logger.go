package common

import (
	"context"
	"log/slog"
	"os"
)

// Fields carries structured context for LogError.
type Fields map[string]any

// SetupLogger installs the process-wide slog handler. The engine logs through
// the default logger; the host picks level and format ("console" or "json")
// once at startup.
func SetupLogger(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// LogError logs a swallowed error with its context. Used on the engine's
// never-propagate paths: training epilogues, reporting, cold start.
func LogError(err error, msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("error", err.Error()))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	slog.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

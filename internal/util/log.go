// Package util provides shared helpers for logging, retries, and rate
// limiting.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a JSON structured logger at the given level. Recognised
// levels are "debug", "info", "warn", and "error"; anything else falls back
// to "info".
func NewLogger(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault installs logger as the process-wide slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel converts a config/flag string into a slog level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// setupLogger creates the daemon logger. debugLogging forces debug level
// regardless of the configured one.
func setupLogger(level slog.Level, debugLogging bool) *slog.Logger {
	if debugLogging {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown strings fall back to warn.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Configure installs a text handler at the given level as the slog default.
// Logs go to stderr so stdout stays clean for the interactive chat surface.
func Configure(levelStr string) {
	ConfigureWithWriter(os.Stderr, levelStr)
}

// ConfigureWithWriter is Configure with an explicit destination, used by tests.
func ConfigureWithWriter(w io.Writer, levelStr string) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	})
	slog.SetDefault(slog.New(handler))
}

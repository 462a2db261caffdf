package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the service logger: JSON records on stdout tagged with the service name.
func New(level string, serviceName string) *slog.Logger {
	return NewWithWriter(os.Stdout, level).With("service", serviceName)
}

// NewWithWriter is New without the service tag, writing to w.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogSchema documents the fields every structured event carries.
type LogSchema struct {
	Timestamp     string      `json:"time"`
	CorrelationID string      `json:"correlation_id"`
	Component     string      `json:"component"` // pipeline, server, notify, storage
	Event         string      `json:"msg"`       // pipeline_started, repair_applied, ...
	Payload       interface{} `json:"payload"`
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
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

// New returns a JSON logger writing to w.
func New(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// Open builds the process logger. With a path it appends JSON lines to that
// file and returns a closer; otherwise it writes to stdout.
func Open(path, level string) (*slog.Logger, func() error, error) {
	if path == "" {
		return New(os.Stdout, level), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, level), f.Close, nil
}

// Component scopes l to one subsystem.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", name))
}

// LogEvent writes a structured event keyed by correlation id.
func LogEvent(ctx context.Context, l *slog.Logger, correlationID, component, event string, payload interface{}) {
	if l == nil {
		l = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.InfoContext(ctx, event,
		slog.String("correlation_id", correlationID),
		slog.String("component", component),
		slog.Any("payload", payload),
	)
}

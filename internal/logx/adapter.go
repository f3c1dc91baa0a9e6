package logx

import (
	"io"
	"log/slog"
	"strings"
)

// SlogAdapter adapts the standard library slog.Logger to the logx.Logger interface.
type SlogAdapter struct {
	l *slog.Logger
}

// NewSlogAdapter returns a Logger implementation backed by the provided *slog.Logger.
func NewSlogAdapter(l *slog.Logger) Logger {
	return &SlogAdapter{l: l}
}

// NewJSON builds a JSON slog logger writing to w at the given level
// ("debug", "info", "warn", "error"; anything else means info).
func NewJSON(w io.Writer, level string) Logger {
	return NewSlogAdapter(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// ParseLevel maps a textual level to slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Debug logs a debug-level message with optional structured fields.
func (s *SlogAdapter) Debug(msg string, fields ...Field) { s.l.Debug(msg, toSlogArgs(fields)...) }

// Info logs an info-level message with optional structured fields.
func (s *SlogAdapter) Info(msg string, fields ...Field) { s.l.Info(msg, toSlogArgs(fields)...) }

// Warn logs a warning-level message with optional structured fields.
func (s *SlogAdapter) Warn(msg string, fields ...Field) { s.l.Warn(msg, toSlogArgs(fields)...) }

// Error logs an error-level message with optional structured fields.
func (s *SlogAdapter) Error(msg string, fields ...Field) { s.l.Error(msg, toSlogArgs(fields)...) }

// With returns a new logger with the provided fields attached to every subsequent log entry.
func (s *SlogAdapter) With(fields ...Field) Logger {
	return &SlogAdapter{l: s.l.With(toSlogArgs(fields)...)}
}

// Sync flushes buffered logs if supported; slog.Logger does not require flushing.
func (s *SlogAdapter) Sync() error { return nil }

func toSlogArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

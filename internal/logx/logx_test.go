package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFields_Constructors(t *testing.T) {
	now := time.Now()

	require.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	require.Equal(t, Field{Key: "k", Value: 1}, Int("k", 1))
	require.Equal(t, Field{Key: "k", Value: int64(2)}, Int64("k", int64(2)))
	require.Equal(t, Field{Key: "k", Value: 1.5}, Float64("k", 1.5))
	require.Equal(t, Field{Key: "k", Value: true}, Bool("k", true))
	require.Equal(t, Field{Key: "k", Value: now}, Time("k", now))
	require.Equal(t, Field{Key: "k", Value: time.Second}, Duration("k", time.Second))
	require.Equal(t, Field{Key: "err", Value: "boom"}, Err(errors.New("boom")))
	require.Equal(t, Field{Key: "err", Value: ""}, Err(nil))
}

func TestNopLogger_NoPanic(t *testing.T) {
	l := Nop()
	l.Debug("d", String("k", "v"))
	l.Info("i", Int("n", 1))
	l.Warn("w")
	l.Error("e")

	l2 := l.With(String("x", "y"))
	require.NotNil(t, l2)
	require.NoError(t, l2.Sync())
}

func TestComponent_NilFallsBackToNop(t *testing.T) {
	require.NotNil(t, Component(nil, "x"))
}

func TestNewJSON_WritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewJSON(&buf, "debug"), "retry_loop")

	l.Debug("tick", Int("orders", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "tick", entry["msg"])
	require.Equal(t, "retry_loop", entry["component"])
	require.EqualValues(t, 3, entry["orders"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestSlogAdapter_AllLevels(t *testing.T) {
	l := NewSlogAdapter(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))

	l.Debug("msg", String("k", "v"))
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg", Err(errors.New("x")))
	require.Len(t, toSlogArgs([]Field{String("a", "b"), Int("n", 1)}), 2)
	require.NoError(t, l.With(String("x", "y")).Sync())
}

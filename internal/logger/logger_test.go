package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/garyellow/ntpu-directory-bot/internal/ctxutil"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log %q: %v", buf.String(), err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	log.Warn("test message")

	entry := decodeLine(t, &buf)
	for _, field := range []string{"timestamp", "level", "message"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("JSON log missing required field %q", field)
		}
	}
	if entry["message"] != "test message" {
		t.Errorf("message = %v, want %q", entry["message"], "test message")
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want warning", entry["level"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("error", &buf)
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at error level: %s", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)

	log.WithModule("directory").
		WithError(errors.New("boom")).
		WithField("cohort", "101/85").
		WithFields(map[string]any{"entries": 42}).
		Info("merged")

	entry := decodeLine(t, &buf)
	if entry["module"] != "directory" {
		t.Errorf("module = %v", entry["module"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
	if entry["cohort"] != "101/85" {
		t.Errorf("cohort = %v", entry["cohort"])
	}
	if entry["entries"] != float64(42) {
		t.Errorf("entries = %v", entry["entries"])
	}
}

func TestLogger_ContextValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	ctx := ctxutil.WithRequestID(context.Background(), "req-123")
	ctx = ctxutil.WithUserID(ctx, "U1")
	log.InfoContext(ctx, "handled")

	entry := decodeLine(t, &buf)
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["user_id"] != "U1" {
		t.Errorf("user_id = %v", entry["user_id"])
	}
}

func TestLogger_DroppedWithoutRemote(t *testing.T) {
	t.Parallel()

	if got := NewWithWriter("info", &bytes.Buffer{}).Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0 without a remote sink", got)
	}
}

func TestLogger_ShutdownWithoutRemote(t *testing.T) {
	t.Parallel()

	log := NewWithWriter("info", &bytes.Buffer{})
	if err := log.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}

	var nilLogger *Logger
	if err := nilLogger.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown() = %v, want nil", err)
	}
}

func TestLogger_WithBetterStack(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{
		Level:               "info",
		Writer:              &buf,
		BetterStackToken:    "token",
		BetterStackEndpoint: "http://127.0.0.1:1",
	})
	if log.async == nil {
		t.Fatal("remote handler not installed")
	}
	if log.Dropped() != 0 {
		t.Errorf("Dropped() = %d on a fresh queue", log.Dropped())
	}

	log.WithModule("app").Info("local copy")
	entry := decodeLine(t, &buf)
	if entry["module"] != "app" {
		t.Errorf("module = %v", entry["module"])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = log.Shutdown(ctx)
}

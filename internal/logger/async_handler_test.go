package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAsyncHandler_FlushOnShutdown(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	inner := slog.NewJSONHandler(out, nil)
	h := NewAsyncHandler(inner, AsyncOptions{BufferSize: 16, FlushTimeout: time.Second})

	log := slog.New(h).With("module", "refresh")
	for range 5 {
		log.Info("queued")
	}

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if got := strings.Count(out.String(), "queued"); got != 5 {
		t.Errorf("flushed %d records, want 5", got)
	}
	if !strings.Contains(out.String(), `"module":"refresh"`) {
		t.Error("attributes from WithAttrs were lost")
	}

	// Records after shutdown are dropped silently.
	log.Info("late")
	if strings.Contains(out.String(), "late") {
		t.Error("record written after shutdown")
	}
	if err := h.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestAsyncHandler_RespectsLevel(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	inner := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewAsyncHandler(inner, AsyncOptions{})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(info) = true for warn handler")
	}
	slog.New(h).Info("skipped")
	_ = h.Shutdown(context.Background())
	if out.String() != "" {
		t.Errorf("unexpected output %q", out.String())
	}
}

// gateHandler blocks every Handle call until gate is closed.
type gateHandler struct {
	slog.Handler
	gate    chan struct{}
	handled atomic.Int32
}

func (h *gateHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *gateHandler) Handle(context.Context, slog.Record) error {
	<-h.gate
	h.handled.Add(1)
	return nil
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	t.Parallel()

	sink := &gateHandler{gate: make(chan struct{})}
	var onDrop atomic.Int32
	h := NewAsyncHandler(sink, AsyncOptions{BufferSize: 1, OnDrop: func() { onDrop.Add(1) }})

	log := slog.New(h)
	for range 10 {
		log.Warn("cohort fetch failed")
	}

	// One record may sit in the sink and one in the buffer.
	dropped := h.Dropped()
	if dropped < 8 {
		t.Errorf("Dropped() = %d, want at least 8", dropped)
	}
	if got := uint64(onDrop.Load()); got != dropped {
		t.Errorf("OnDrop called %d times, want %d", got, dropped)
	}

	close(sink.gate)
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if got := uint64(sink.handled.Load()) + dropped; got != 10 {
		t.Errorf("handled + dropped = %d, want 10", got)
	}
}

func TestAsyncHandler_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	sink := &gateHandler{gate: make(chan struct{})}
	defer close(sink.gate)
	h := NewAsyncHandler(sink, AsyncOptions{FlushTimeout: 20 * time.Millisecond})

	slog.New(h).Info("stuck")
	if err := h.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown() = nil, want timeout while the sink is blocked")
	}
}

package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// blockingHandler blocks in Handle until release is closed.
type blockingHandler struct {
	release chan struct{}
	mu      sync.Mutex
	msgs    []string
}

func (h *blockingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *blockingHandler) Handle(_ context.Context, r slog.Record) error {
	<-h.release
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, r.Message)
	return nil
}

func (h *blockingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *blockingHandler) WithGroup(string) slog.Handler      { return h }

func TestAsyncHandler_FlushesOnClose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closeFn := NewLogger(&buf, Options{Verbose: true, Async: true, QueueSize: 64})
	for range 10 {
		logger.Info("queued message")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := strings.Count(buf.String(), "queued message"); got != 10 {
		t.Errorf("expected 10 messages after close, got %d", got)
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	t.Parallel()

	inner := &blockingHandler{release: make(chan struct{})}
	h := NewAsyncHandler(inner, 1)
	logger := slog.New(h)

	// The writer goroutine takes at most one record and blocks on it; the
	// queue holds one more; the rest must be dropped without blocking.
	for range 10 {
		logger.Info("m")
	}
	if h.Dropped() < 8 {
		t.Errorf("expected at least 8 dropped records, got %d", h.Dropped())
	}

	close(inner.release)
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if int64(len(inner.msgs))+h.Dropped() != 10 {
		t.Errorf("written %d + dropped %d != 10", len(inner.msgs), h.Dropped())
	}
}

func TestAsyncHandler_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewAsyncHandler(slog.NewTextHandler(&buf, nil), 0)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	slog.New(h).Warn("after close")
	if h.Dropped() != 1 {
		t.Errorf("expected record after close to be dropped, got %d", h.Dropped())
	}
}

func TestAsyncHandler_DerivedHandlersShareQueue(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewAsyncHandler(slog.NewTextHandler(&buf, nil), 16)
	slog.New(h).With("k", "v").WithGroup("g").Warn("derived", "a", 1)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "k=v") || !strings.Contains(out, "g.a=1") {
		t.Errorf("unexpected output %s", out)
	}
}

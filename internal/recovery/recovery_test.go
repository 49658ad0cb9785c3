package recovery

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecover_LogsPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	func() {
		defer Recover(logger, "worker")
		panic("boom")
	}()

	out := buf.String()
	if !strings.Contains(out, "panic recovered") {
		t.Errorf("log output %q missing recovery message", out)
	}
	if !strings.Contains(out, "boom") || !strings.Contains(out, "worker") {
		t.Errorf("log output %q missing panic value or goroutine name", out)
	}
}

func TestRecover_NoPanicNoLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	func() {
		defer Recover(logger, "worker")
	}()

	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestGo_SurvivesPanic(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{mu: &mu, buf: &buf}, nil))

	Go(logger, "panicky", func() {
		panic("task failed")
	})

	// The recovery log lands after the goroutine's deferred handler runs;
	// poll instead of racing it with a channel.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		out := buf.String()
		mu.Unlock()
		if strings.Contains(out, "task failed") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("log output %q missing panic value", out)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

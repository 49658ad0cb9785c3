package network

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type collectHandler struct {
	mu          sync.Mutex
	frames      [][]byte
	disconnects []error
	frameCh     chan []byte
	dropCh      chan error
}

func newCollectHandler() *collectHandler {
	return &collectHandler{
		frameCh: make(chan []byte, 16),
		dropCh:  make(chan error, 16),
	}
}

func (h *collectHandler) HandleFrame(body []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, body)
	h.mu.Unlock()
	h.frameCh <- body
}

func (h *collectHandler) HandleDisconnect(err error) {
	h.mu.Lock()
	h.disconnects = append(h.disconnects, err)
	h.mu.Unlock()
	h.dropCh <- err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// testServer accepts connections and hands them to the test.
func testServer(t *testing.T) (addr string, conns chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns = make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()
	return ln.Addr().String(), conns
}

func readFrame(t *testing.T, c net.Conn) []byte {
	t.Helper()
	var lenBuf [4]byte
	if _, err := io.ReadFull(c, lenBuf[:]); err != nil {
		t.Fatalf("read length: %v", err)
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, total-4)
	if _, err := io.ReadFull(c, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}

func writeFrame(t *testing.T, c net.Conn, body []byte) {
	t.Helper()
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)+4))
	copy(frame[4:], body)
	if _, err := c.Write(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestSocket_SendAndReceive(t *testing.T) {
	addr, conns := testServer(t)
	h := newCollectHandler()
	s := NewSocketContext([]string{addr}, h, discard())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()
	if !s.Connected() {
		t.Fatal("Connected() = false after Connect")
	}

	server := <-conns
	defer server.Close()

	if err := s.Send([]byte("outbound body")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := readFrame(t, server); !bytes.Equal(got, []byte("outbound body")) {
		t.Errorf("server got %q", got)
	}

	writeFrame(t, server, []byte("inbound body"))
	select {
	case got := <-h.frameCh:
		if !bytes.Equal(got, []byte("inbound body")) {
			t.Errorf("handler got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound frame not delivered")
	}
}

func TestSocket_DisconnectIsIdempotent(t *testing.T) {
	addr, conns := testServer(t)
	h := newCollectHandler()
	s := NewSocketContext([]string{addr}, h, discard())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	(<-conns).Close()

	s.Disconnect()
	s.Disconnect()

	select {
	case <-h.dropCh:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not delivered")
	}
	// Only one notification despite the double Disconnect and the server
	// close racing it.
	time.Sleep(50 * time.Millisecond)
	h.mu.Lock()
	n := len(h.disconnects)
	h.mu.Unlock()
	if n != 1 {
		t.Errorf("disconnect notifications = %d, want 1", n)
	}

	if err := s.Send([]byte("late")); err == nil {
		t.Error("Send after Disconnect should fail")
	}
}

func TestSocket_ServerCloseSurfacesError(t *testing.T) {
	addr, conns := testServer(t)
	h := newCollectHandler()
	s := NewSocketContext([]string{addr}, h, discard())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	(<-conns).Close()

	select {
	case err := <-h.dropCh:
		if err == nil {
			t.Error("server close should carry an error cause")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not delivered")
	}
	if s.Connected() {
		t.Error("Connected() should be false after server close")
	}
}

func TestSocket_BadFrameLength(t *testing.T) {
	addr, conns := testServer(t)
	h := newCollectHandler()
	s := NewSocketContext([]string{addr}, h, discard())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-conns
	defer server.Close()

	// Length below the minimum of 4.
	server.Write([]byte{0x00, 0x00, 0x00, 0x02})
	select {
	case err := <-h.dropCh:
		if err == nil {
			t.Error("bad length should carry an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not delivered")
	}
}

func TestSocket_ConnectReplacesLiveConnection(t *testing.T) {
	addr, conns := testServer(t)
	h := newCollectHandler()
	s := NewSocketContext([]string{addr}, h, discard())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := <-conns
	defer first.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer s.Disconnect()
	second := <-conns
	defer second.Close()

	// The old connection is torn down and its notice delivered.
	select {
	case <-h.dropCh:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement disconnect not delivered")
	}
	if _, err := first.Read(make([]byte, 1)); err == nil {
		t.Error("first connection should be closed")
	}

	// The replacement connection carries traffic.
	if err := s.Send([]byte("after replace")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := readFrame(t, second); !bytes.Equal(got, []byte("after replace")) {
		t.Errorf("server got %q", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		retry uint
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{7, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.retry); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestMonitor_ReconnectsUntilSuccess(t *testing.T) {
	s := NewSocketContext(nil, newCollectHandler(), discard())

	var attempts atomic.Int32
	m := NewMonitor(s, func(ctx context.Context) error {
		n := attempts.Add(1)
		if n < 3 {
			return errors.New("still down")
		}
		s.connected.Store(true)
		return nil
	}, true, discard())
	m.interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { m.Run(ctx); close(done) }()

	deadline := time.After(8 * time.Second)
	for attempts.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("attempts = %d after deadline", attempts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	settled := attempts.Load()
	time.Sleep(100 * time.Millisecond)
	if got := attempts.Load(); got != settled {
		t.Errorf("monitor kept reconnecting while connected: %d -> %d", settled, got)
	}
	cancel()
	<-done
}

func TestMonitor_DisabledNeverReconnects(t *testing.T) {
	s := NewSocketContext(nil, newCollectHandler(), discard())

	var attempts atomic.Int32
	m := NewMonitor(s, func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	}, false, discard())
	m.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if attempts.Load() != 0 {
		t.Errorf("attempts = %d with auto-reconnect disabled", attempts.Load())
	}
}

func TestHeartbeat_SkipOnMiss(t *testing.T) {
	s := NewSocketContext(nil, newCollectHandler(), discard())
	s.connected.Store(true)

	release := make(chan struct{})
	var beats atomic.Int32
	h := NewHeartbeat(s, func(ctx context.Context) error {
		if beats.Add(1) == 1 {
			<-release
		}
		return nil
	}, discard())
	h.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	// First beat blocks across many intervals.
	deadline := time.After(2 * time.Second)
	for beats.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first beat never fired")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(80 * time.Millisecond)
	close(release)

	// The stall spanned ~8 intervals but at most one tick was pending, so
	// the catch-up is a single beat, not a burst.
	time.Sleep(5 * time.Millisecond)
	if got := beats.Load(); got > 2 {
		t.Errorf("beats after stall = %d, want at most 2", got)
	}
}

func TestHeartbeat_SkipsWhenDisconnected(t *testing.T) {
	s := NewSocketContext(nil, newCollectHandler(), discard())

	var beats atomic.Int32
	h := NewHeartbeat(s, func(ctx context.Context) error {
		beats.Add(1)
		return nil
	}, discard())
	h.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if beats.Load() != 0 {
		t.Errorf("beats = %d while disconnected", beats.Load())
	}
}

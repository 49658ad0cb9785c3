// Package network maintains the framed TCP connection: one reader loop, one
// writer loop, a reconnect monitor and the heartbeat ticker. Frames are
// u32 big-endian total length (counting the four length bytes) followed by
// the body.
package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nanoim/botcore/internal/errs"
)

// DefaultServers are the production endpoints, tried in order.
var DefaultServers = []string{
	"msfwifi.3g.qq.com:8080",
	"msfwifiv6.3g.qq.com:8080",
}

// maxFrameSize rejects obviously corrupt length prefixes before allocating.
const maxFrameSize = 1 << 24

var (
	bytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_socket_read_bytes_total",
		Help: "Bytes read off the wire.",
	})
	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_socket_written_bytes_total",
		Help: "Bytes written to the wire.",
	})
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_socket_reconnects_total",
		Help: "Reconnect attempts.",
	})
)

// Handler receives inbound frames and disconnect notices. Callbacks run on
// the reader goroutine; they must not block.
type Handler interface {
	HandleFrame(body []byte)
	HandleDisconnect(err error)
}

// SocketContext owns at most one live connection. Connect and Disconnect
// may be called from any goroutine.
type SocketContext struct {
	servers []string
	handler Handler
	log     *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	sendQ     *sendQueue
	closeOnce *sync.Once

	connected atomic.Bool
}

// NewSocketContext builds a disconnected socket context. An empty server
// list falls back to the defaults.
func NewSocketContext(servers []string, handler Handler, log *slog.Logger) *SocketContext {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	return &SocketContext{
		servers: servers,
		handler: handler,
		log:     log.With(slog.String("component", "socket")),
	}
}

// Connected reports whether a connection is currently live.
func (s *SocketContext) Connected() bool { return s.connected.Load() }

// Connect dials the first reachable server and starts the reader and
// writer loops. A prior connection is torn down first; the handler sees
// its disconnect notice before the new dial.
func (s *SocketContext) Connect(ctx context.Context) error {
	s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()

	var conn net.Conn
	var lastErr error
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	for _, addr := range s.servers {
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			s.log.Warn("dial failed", slog.String("server", addr), slog.Any("error", err))
			continue
		}
		conn = c
		s.log.Info("connected", slog.String("server", addr))
		break
	}
	if conn == nil {
		return errs.NetworkWrap(lastErr, "all servers unreachable")
	}

	s.conn = conn
	s.sendQ = newSendQueue()
	s.closeOnce = &sync.Once{}
	s.connected.Store(true)

	go s.readLoop(conn, s.closeOnce)
	go s.writeLoop(conn, s.sendQ, s.closeOnce)
	return nil
}

// Send enqueues one frame body. The length prefix is added here; the write
// happens on the writer goroutine. Send never blocks.
func (s *SocketContext) Send(body []byte) error {
	s.mu.Lock()
	q := s.sendQ
	s.mu.Unlock()
	if q == nil || !s.connected.Load() {
		return errs.Network("not connected")
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)+4))
	copy(frame[4:], body)
	if !q.push(frame) {
		return errs.Network("not connected")
	}
	return nil
}

// Disconnect tears the connection down. Safe to call repeatedly.
func (s *SocketContext) Disconnect() {
	s.mu.Lock()
	conn, once := s.conn, s.closeOnce
	s.mu.Unlock()
	if conn != nil {
		s.teardown(conn, once, nil)
	}
}

// teardown closes the connection exactly once and notifies the handler.
func (s *SocketContext) teardown(conn net.Conn, once *sync.Once, cause error) {
	once.Do(func() {
		s.connected.Store(false)
		_ = conn.Close()

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.sendQ.close()
			s.sendQ = nil
		}
		s.mu.Unlock()

		if cause != nil {
			s.log.Warn("connection lost", slog.Any("error", cause))
		} else {
			s.log.Info("disconnected")
		}
		s.handler.HandleDisconnect(cause)
	})
}

func (s *SocketContext) readLoop(conn net.Conn, once *sync.Once) {
	br := bufio.NewReaderSize(conn, 32*1024)
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			s.teardown(conn, once, errs.NetworkWrap(err, "read length"))
			return
		}
		total := binary.BigEndian.Uint32(lenBuf[:])
		if total < 4 || total > maxFrameSize {
			s.teardown(conn, once, errs.Network("bad frame length %d", total))
			return
		}
		body := make([]byte, total-4)
		if _, err := io.ReadFull(br, body); err != nil {
			s.teardown(conn, once, errs.NetworkWrap(err, "read body"))
			return
		}
		bytesRead.Add(float64(total))
		s.handler.HandleFrame(body)
	}
}

func (s *SocketContext) writeLoop(conn net.Conn, q *sendQueue, once *sync.Once) {
	for {
		frame, ok := q.pop()
		if !ok {
			return
		}
		if _, err := conn.Write(frame); err != nil {
			s.teardown(conn, once, errs.NetworkWrap(err, "write"))
			return
		}
		bytesWritten.Add(float64(len(frame)))
	}
}

// sendQueue is the unbounded outbound queue feeding the writer loop.
type sendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	closed bool
}

func newSendQueue() *sendQueue {
	q := &sendQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) push(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.frames = append(q.frames, frame)
	q.cond.Signal()
	return true
}

func (q *sendQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

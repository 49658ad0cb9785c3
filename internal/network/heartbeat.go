package network

import (
	"context"
	"log/slog"
	"time"
)

// heartbeatInterval is the keep-alive cadence.
const heartbeatInterval = 5 * time.Second

// Heartbeat fires the beat callback on a fixed cadence while the socket is
// connected. Ticks that land while a beat is still running are dropped,
// never queued.
type Heartbeat struct {
	socket   *SocketContext
	beat     func(ctx context.Context) error
	interval time.Duration
	log      *slog.Logger
}

// NewHeartbeat builds a heartbeat task; it does nothing until Run.
func NewHeartbeat(socket *SocketContext, beat func(ctx context.Context) error, log *slog.Logger) *Heartbeat {
	return &Heartbeat{
		socket:   socket,
		beat:     beat,
		interval: heartbeatInterval,
		log:      log.With(slog.String("component", "heartbeat")),
	}
}

// Run blocks until ctx is cancelled. time.Ticker keeps at most one pending
// tick, which gives the skip-on-miss behavior: a beat stalled past several
// intervals resumes with a single catch-up beat.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !h.socket.Connected() {
			continue
		}
		if err := h.beat(ctx); err != nil {
			h.log.Warn("heartbeat failed", slog.Any("error", err))
		}
	}
}

package network

import (
	"context"
	"log/slog"
	"time"
)

// monitorInterval is how often the connection state is observed.
const monitorInterval = 3 * time.Second

// backoffDelay is the reconnect schedule: 1s, 2s, 4s, ... capped at 60s.
func backoffDelay(retry uint) time.Duration {
	shift := retry
	if shift > 6 {
		shift = 6
	}
	secs := uint(1) << shift
	if secs > 60 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// Monitor watches the socket and reconnects with exponential back-off when
// auto-reconnect is enabled. Reconnect runs the full session re-entry
// (dial plus register), supplied by the bot.
type Monitor struct {
	socket    *SocketContext
	reconnect func(ctx context.Context) error
	enabled   bool
	interval  time.Duration
	log       *slog.Logger
}

// NewMonitor builds a monitor; it does nothing until Run.
func NewMonitor(socket *SocketContext, reconnect func(ctx context.Context) error, enabled bool, log *slog.Logger) *Monitor {
	return &Monitor{
		socket:    socket,
		reconnect: reconnect,
		enabled:   enabled,
		interval:  monitorInterval,
		log:       log.With(slog.String("component", "monitor")),
	}
}

// Run blocks until ctx is cancelled, observing the connection on every
// tick. Missed ticks are skipped.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var retry uint
	var nextAttempt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.socket.Connected() {
			if retry != 0 {
				m.log.Info("connection restored", slog.Uint64("retries", uint64(retry)))
			}
			retry = 0
			nextAttempt = time.Time{}
			continue
		}
		if !m.enabled {
			continue
		}
		if now := time.Now(); now.Before(nextAttempt) {
			continue
		}

		reconnects.Inc()
		m.log.Info("reconnecting", slog.Uint64("attempt", uint64(retry+1)))
		if err := m.reconnect(ctx); err != nil {
			delay := backoffDelay(retry)
			retry++
			nextAttempt = time.Now().Add(delay)
			m.log.Warn("reconnect failed",
				slog.Any("error", err),
				slog.Duration("next_attempt_in", delay))
			continue
		}
		retry = 0
		nextAttempt = time.Time{}
	}
}

// Package metrics provides Prometheus metrics for the bot core and the
// optional exposition endpoint.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "botcore"
)

// Metrics contains the bot-level Prometheus metrics. Transport and packet
// counters live next to their packages; everything account-scoped is here.
type Metrics struct {
	// Session metrics
	Online        prometheus.Gauge
	LoginRounds   *prometheus.CounterVec
	SessionResume *prometheus.CounterVec

	// Keep-alive metrics
	HeartbeatsSent   prometheus.Counter
	HeartbeatsFailed prometheus.Counter

	// Push routing metrics
	PushesRouted  *prometheus.CounterVec
	PushesDropped prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 while the bot holds a live registered session",
		}),
		LoginRounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_rounds_total",
			Help:      "Login round trips by resulting state",
		}, []string{"state"}),
		SessionResume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resume_total",
			Help:      "Automatic re-login attempts after reconnect by result",
		}, []string{"result"}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Alive service round trips completed",
		}),
		HeartbeatsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_failed_total",
			Help:      "Alive service round trips that returned an error",
		}),
		PushesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_routed_total",
			Help:      "Server-initiated packets routed to a registered service",
		}, []string{"command"}),
		PushesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_dropped_total",
			Help:      "Server-initiated packets with no registered service",
		}),
	}
}

// SetOnline flips the online gauge.
func (m *Metrics) SetOnline(online bool) {
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

// RecordLoginRound records one login round trip with its resulting state.
func (m *Metrics) RecordLoginRound(state string) {
	m.LoginRounds.WithLabelValues(state).Inc()
}

// RecordResume records an automatic re-login attempt.
func (m *Metrics) RecordResume(ok bool) {
	if ok {
		m.SessionResume.WithLabelValues("ok").Inc()
	} else {
		m.SessionResume.WithLabelValues("error").Inc()
	}
}

// RecordHeartbeat records one heartbeat round trip.
func (m *Metrics) RecordHeartbeat(err error) {
	if err != nil {
		m.HeartbeatsFailed.Inc()
		return
	}
	m.HeartbeatsSent.Inc()
}

// RecordPush records a routed server-initiated packet.
func (m *Metrics) RecordPush(command string) {
	m.PushesRouted.WithLabelValues(command).Inc()
}

// RecordPushDropped records a push with no registered handler.
func (m *Metrics) RecordPushDropped() {
	m.PushesDropped.Inc()
}

// Server exposes the Prometheus endpoint when metrics are enabled.
type Server struct {
	srv  *http.Server
	log  *slog.Logger
	addr net.Addr
}

// NewServer builds an exposition server bound to addr.
func NewServer(addr string, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With(slog.String("component", "metrics")),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.log.Info("metrics endpoint started", slog.String("address", s.addr.String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr { return s.addr }

// Stop shuts the endpoint down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

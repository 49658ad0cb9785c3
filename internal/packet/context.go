package packet

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/sign"
)

var (
	packetsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcore_packets_sent_total",
		Help: "Outbound SSO packets by command.",
	}, []string{"command"})
	packetsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botcore_packets_pending",
		Help: "Requests awaiting a correlated response.",
	})
	packetsUnmatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_packets_unmatched_total",
		Help: "Inbound packets with no pending request, routed as pushes.",
	})
)

// Sender enqueues one outbound wire frame.
type Sender interface {
	Send(data []byte) error
}

// Context owns the sequence counter and the sequence-to-reply correlation
// map. One Context serves one connection lifetime across reconnects.
type Context struct {
	codec  *Codec
	sender Sender
	signer sign.Provider
	log    *slog.Logger

	seq     atomic.Uint32
	pending sync.Map // uint32 -> chan *SsoPacket
}

// NewContext wires the correlation layer to a codec, an outbound sender and
// a sign provider.
func NewContext(codec *Codec, sender Sender, signer sign.Provider, log *slog.Logger) *Context {
	c := &Context{
		codec:  codec,
		sender: sender,
		signer: signer,
		log:    log.With(slog.String("component", "packet")),
	}
	c.seq.Store(0) // first NextSeq yields 1
	return c
}

// NextSeq allocates a fresh sequence number. The counter is monotonic and
// wraps through the full u32 range; zero is skipped on wrap.
func (c *Context) NextSeq() uint32 {
	for {
		s := c.seq.Add(1)
		if s != 0 {
			return s
		}
	}
}

// SendPacket sends one request and blocks until its correlated response
// arrives, the context is cancelled, or the connection dies.
func (c *Context) SendPacket(ctx context.Context, command string, body []byte, protocol int32, encrypt EncryptType) (*SsoPacket, error) {
	seq := c.NextSeq()
	return c.SendPacketSeq(ctx, seq, command, body, protocol, encrypt)
}

// SendPacketSeq is SendPacket with a caller-chosen sequence. Login flows
// that must echo the sequence into the body use it.
func (c *Context) SendPacketSeq(ctx context.Context, seq uint32, command string, body []byte, protocol int32, encrypt EncryptType) (*SsoPacket, error) {
	signResult, err := c.signer.Sign(ctx, command, seq, body)
	if err != nil {
		return nil, err
	}

	sso, err := c.codec.BuildSso(&SsoPacket{Seq: seq, Command: command, Data: body}, protocol, signResult)
	if err != nil {
		return nil, err
	}
	frame, err := c.codec.BuildService(sso, protocol, encrypt)
	if err != nil {
		return nil, err
	}

	ch := make(chan *SsoPacket, 1)
	c.pending.Store(seq, ch)
	packetsPending.Inc()
	defer func() {
		if _, loaded := c.pending.LoadAndDelete(seq); loaded {
			packetsPending.Dec()
		}
	}()

	if err := c.sender.Send(frame); err != nil {
		return nil, errs.NetworkWrap(err, "send")
	}
	packetsSent.WithLabelValues(command).Inc()
	c.log.Debug("packet sent",
		slog.String("command", command),
		slog.Uint64("seq", uint64(seq)),
		slog.Int("size", len(frame)))

	select {
	case <-ctx.Done():
		return nil, errs.NetworkWrap(ctx.Err(), "await response")
	case p, ok := <-ch:
		if !ok {
			return nil, errs.Network("response channel closed")
		}
		if err := p.Err(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// DispatchPacket routes an inbound packet to its pending request. A packet
// with no waiter is returned to the caller for push routing.
func (c *Context) DispatchPacket(p *SsoPacket) *SsoPacket {
	if ch, loaded := c.pending.LoadAndDelete(p.Seq); loaded {
		packetsPending.Dec()
		ch.(chan *SsoPacket) <- p
		return nil
	}
	packetsUnmatched.Inc()
	return p
}

// FailPending closes every pending reply slot. The connection monitor calls
// it on disconnect so waiting requests fail fast instead of timing out.
func (c *Context) FailPending() {
	c.pending.Range(func(key, value any) bool {
		if _, loaded := c.pending.LoadAndDelete(key); loaded {
			packetsPending.Dec()
			close(value.(chan *SsoPacket))
		}
		return true
	})
}

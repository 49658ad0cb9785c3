// Package event is the broadcast bus carrying protocol events (login state
// changes, server pushes, disconnects) to subscribers. One bus serves one
// bot; every subscriber sees every message.
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// busCapacity is the per-subscriber buffer. A subscriber that falls this
// far behind starts losing the oldest unread messages.
const busCapacity = 1024

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "botcore_events_dropped_total",
	Help: "Events dropped because a subscriber buffer was full.",
})

// ErrClosed reports a receive from a shut-down bus.
var ErrClosed = errors.New("event: bus closed")

// Message is the type-tagged envelope on the bus.
type Message struct {
	payload any
}

// NewMessage wraps a payload.
func NewMessage(payload any) *Message { return &Message{payload: payload} }

// Payload returns the raw payload.
func (m *Message) Payload() any { return m.payload }

// As downcasts the payload. The second return is false on a type mismatch.
func As[T any](m *Message) (T, bool) {
	v, ok := m.payload.(T)
	return v, ok
}

// Bus fans every published message out to all live subscriptions.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	bus *Bus
	ch  chan *Message

	closeOnce sync.Once
}

// Subscribe registers a new subscriber. Returns nil after Close.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	s := &Subscription{bus: b, ch: make(chan *Message, busCapacity)}
	b.subs[s] = struct{}{}
	return s
}

// Publish wraps payload and fans it out. A full subscriber drops its oldest
// unread message to make room; publishing never blocks.
func (b *Bus) Publish(payload any) {
	m := NewMessage(payload)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		for {
			select {
			case s.ch <- m:
			default:
				select {
				case <-s.ch:
					eventsDropped.Inc()
				default:
				}
				continue
			}
			break
		}
	}
}

// Close tears the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.closeLocked()
	}
	b.subs = nil
}

// C exposes the raw message stream.
func (s *Subscription) C() <-chan *Message { return s.ch }

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if !s.bus.closed {
		delete(s.bus.subs, s)
	}
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Recv blocks for the next message whose payload is a T, skipping
// everything else. It fails only on context cancellation or bus shutdown.
func Recv[T any](ctx context.Context, s *Subscription) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case m, ok := <-s.ch:
			if !ok {
				return zero, ErrClosed
			}
			if v, matched := As[T](m); matched {
				return v, nil
			}
		}
	}
}

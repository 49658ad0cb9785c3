package event

import (
	"context"
	"errors"
	"testing"
	"time"
)

type loginEvent struct{ State uint8 }
type disconnectEvent struct{ Reason string }

func TestBus_Broadcast(t *testing.T) {
	b := NewBus()
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(loginEvent{State: 0})

	for _, sub := range []*Subscription{a, c} {
		select {
		case m := <-sub.C():
			if v, ok := As[loginEvent](m); !ok || v.State != 0 {
				t.Errorf("payload = %+v, ok=%v", m.Payload(), ok)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive")
		}
	}
}

func TestRecv_SkipsMismatches(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub := b.Subscribe()

	b.Publish(loginEvent{State: 2})
	b.Publish(disconnectEvent{Reason: "server closed"})

	got, err := Recv[disconnectEvent](context.Background(), sub)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Reason != "server closed" {
		t.Errorf("Reason = %q", got.Reason)
	}
}

func TestRecv_ContextCancel(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Recv[loginEvent](ctx, sub); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestRecv_BusClosed(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	b.Close()

	if _, err := Recv[loginEvent](context.Background(), sub); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if b.Subscribe() != nil {
		t.Error("Subscribe after Close should return nil")
	}
}

func TestPublish_DropsOldestWhenFull(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub := b.Subscribe()

	for i := 0; i < busCapacity+10; i++ {
		b.Publish(loginEvent{State: uint8(i)})
	}

	// The newest message must still be deliverable.
	var last loginEvent
drain:
	for {
		select {
		case m := <-sub.C():
			last, _ = As[loginEvent](m)
		default:
			break drain
		}
	}
	want := busCapacity + 9
	if last.State != uint8(want) {
		t.Errorf("last state = %d, want %d", last.State, uint8(want))
	}
}

func TestSubscription_CloseDetaches(t *testing.T) {
	b := NewBus()
	defer b.Close()

	sub := b.Subscribe()
	sub.Close()
	b.Publish(loginEvent{State: 1})

	if _, ok := <-sub.C(); ok {
		t.Error("closed subscription should deliver nothing")
	}
}

package syncbus

import (
	"context"
	"testing"
	"time"
)

func TestNewEventAssignsUniqueIDs(t *testing.T) {
	at := time.Unix(10, 0)
	a, err := NewEvent(EventJoin, "w1", at)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	b, err := NewEvent(EventJoin, "w1", at)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Kind != EventJoin || a.Name != "w1" || !a.At.Equal(at) {
		t.Fatalf("unexpected event %+v", a)
	}
}

func TestEventCodecRoundTrip(t *testing.T) {
	ev, _ := NewEvent(EventLeave, "running:odd:name", time.Unix(42, 0).UTC())
	data, err := encodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != ev.ID || got.Kind != ev.Kind || got.Name != ev.Name || !got.At.Equal(ev.At) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, ev)
	}
	if _, err := decodeEvent([]byte("{")); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestInMemoryBusPublishSubscribeFlowAndMetrics(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()
	ch1, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ch2, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Publish(ctx, Event{Kind: EventJoin, Name: "w1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Name != "w1" {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for publish")
		}
	}
	m := bus.Metrics()
	if m.Published != 1 {
		t.Fatalf("expected published 1 got %d", m.Published)
	}
	if m.Delivered != 2 {
		t.Fatalf("expected delivered 2 got %d", m.Delivered)
	}
}

func TestInMemoryBusContextBasedUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	subCtx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(subCtx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unsubscribe")
	}
	bus.subs.mu.Lock()
	defer bus.subs.mu.Unlock()
	if len(bus.subs.chans) != 0 {
		t.Fatal("subscription still present after context cancel")
	}
}

func TestInMemoryBusSlowSubscriberDrops(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()
	ch, _ := bus.Subscribe(ctx)
	for i := 0; i < subscriberBuffer+5; i++ {
		if err := bus.Publish(ctx, Event{Kind: EventJoin, Name: "w"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if got := len(ch); got != subscriberBuffer {
		t.Fatalf("expected %d buffered events got %d", subscriberBuffer, got)
	}
	m := bus.Metrics()
	if m.Published != subscriberBuffer+5 || m.Delivered != subscriberBuffer {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestInMemoryBusDoubleUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()
	ch, _ := bus.Subscribe(ctx)
	if err := bus.Unsubscribe(ctx, ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := bus.Unsubscribe(ctx, ch); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
}

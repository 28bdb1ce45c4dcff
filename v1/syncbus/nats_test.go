package syncbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	nats "github.com/nats-io/nats.go"
)

func newNATSConn(t *testing.T) *nats.Conn {
	t.Helper()
	addr := os.Getenv("PRESENCE_TEST_NATS_ADDR")

	var conn *nats.Conn
	var s *server.Server
	var err error

	if addr != "" {
		t.Logf("TestNATSBus: using real NATS at %s", addr)
		conn, err = nats.Connect(addr)
	} else {
		s = natsserver.RunRandClientPortServer()
		conn, err = nats.Connect(s.ClientURL())
	}
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if s != nil {
			s.Shutdown()
		}
	})
	return conn
}

func TestNATSBusPublishSubscribeFlowAndMetrics(t *testing.T) {
	conn := newNATSConn(t)
	bus := NewNATSBus(conn, "")
	t.Cleanup(func() { _ = bus.Close() })
	ctx := context.Background()

	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ev, _ := NewEvent(EventJoin, "w1", time.Now())
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.ID != ev.ID {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publish")
	}
	metrics := bus.Metrics()
	if metrics.Published != 1 || metrics.Delivered != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestNATSBusCrossInstanceDelivery(t *testing.T) {
	conn := newNATSConn(t)
	sub := NewNATSBus(conn, "presence.test")
	pub := NewNATSBus(conn, "presence.test")
	ctx := context.Background()
	ch, err := sub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := pub.Publish(ctx, Event{Kind: EventLeave, Name: "w9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.Name != "w9" || got.Kind != EventLeave {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNATSBusContextBasedUnsubscribe(t *testing.T) {
	conn := newNATSConn(t)
	bus := NewNATSBus(conn, "")
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
	deadline := time.Now().Add(time.Second)
	for {
		bus.mu.Lock()
		gone := bus.sub == nil
		bus.mu.Unlock()
		if gone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("nats subscription still present after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

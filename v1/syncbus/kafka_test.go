package syncbus

import (
	"context"
	"os"
	"testing"
	"time"

	sarama "github.com/IBM/sarama"
	"github.com/google/uuid"
)

func newKafkaBus(t *testing.T, topic string) (*KafkaBus, context.Context) {
	t.Helper()
	addr := os.Getenv("PRESENCE_TEST_KAFKA_ADDR")
	if addr == "" {
		t.Skip("PRESENCE_TEST_KAFKA_ADDR not set, skipping Kafka integration tests")
	}
	t.Logf("TestKafkaBus: using real Kafka at %s", addr)

	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	bus, err := NewKafkaBus([]string{addr}, topic, config)
	if err != nil {
		t.Fatalf("NewKafkaBus: %v", err)
	}
	t.Cleanup(func() {
		_ = bus.Close()
	})
	return bus, context.Background()
}

func TestKafkaBusPublishSubscribeFlowAndMetrics(t *testing.T) {
	bus, ctx := newKafkaBus(t, "presence-test-"+uuid.NewString())

	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Wait for consumer to be ready (approx)
	time.Sleep(2 * time.Second)

	ev, _ := NewEvent(EventJoin, "w1", time.Now())
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.ID != ev.ID {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for publish")
	}

	metrics := bus.Metrics()
	if metrics.Published != 1 || metrics.Delivered != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestKafkaBusContextBasedUnsubscribe(t *testing.T) {
	bus, _ := newKafkaBus(t, "presence-test-unsub-"+uuid.NewString())

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
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for unsubscribe")
	}
}

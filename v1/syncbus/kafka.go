package syncbus

import (
	"context"
	"log/slog"
	"sync"

	sarama "github.com/IBM/sarama"
)

// DefaultKafkaTopic is the topic presence events are produced to.
const DefaultKafkaTopic = "presence-events"

// KafkaBus implements Bus using a Kafka backend. Events are keyed by worker
// name and consumed from partition 0 of the topic.
type KafkaBus struct {
	client   sarama.Client
	producer sarama.SyncProducer
	consumer sarama.Consumer
	topic    string

	mu   sync.Mutex
	pc   sarama.PartitionConsumer
	subs subscribers
}

// NewKafkaBus creates a new KafkaBus connecting to the given brokers. An
// empty topic selects DefaultKafkaTopic.
func NewKafkaBus(brokers []string, topic string, cfg *sarama.Config) (*KafkaBus, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	cfg.Producer.Return.Successes = true
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, err
	}
	return &KafkaBus{
		client:   client,
		producer: producer,
		consumer: consumer,
		topic:    topic,
	}, nil
}

// Publish implements Bus.Publish.
func (b *KafkaBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(ev.Name),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return err
	}
	b.subs.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *KafkaBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.pc == nil {
		pc, err := b.consumer.ConsumePartition(b.topic, 0, sarama.OffsetNewest)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.pc = pc
		go b.dispatch(pc)
	}
	ch := b.subs.add()
	b.mu.Unlock()
	unsubscribeOnDone(ctx, b, ch)
	return ch, nil
}

func (b *KafkaBus) dispatch(pc sarama.PartitionConsumer) {
	for msg := range pc.Messages() {
		ev, err := decodeEvent(msg.Value)
		if err != nil {
			slog.Warn("presence: dropping malformed bus message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}
		b.subs.deliver(ev)
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *KafkaBus) Unsubscribe(ctx context.Context, ch <-chan Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs.remove(ch) > 0 || b.pc == nil {
		return nil
	}
	err := b.pc.Close()
	b.pc = nil
	return err
}

// Metrics returns the published and delivered counts.
func (b *KafkaBus) Metrics() Metrics {
	return b.subs.metrics()
}

// Close releases resources used by the KafkaBus.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.pc != nil {
		_ = b.pc.Close()
		b.pc = nil
	}
	b.subs.closeAll()
	b.mu.Unlock()
	_ = b.producer.Close()
	_ = b.consumer.Close()
	return b.client.Close()
}

package syncbus

import (
	"context"
	"log/slog"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRedisChannel is the pub/sub channel presence events travel on.
const DefaultRedisChannel = "presence:events"

var tracer = otel.Tracer("github.com/mirkobrombin/go-presence/v1/syncbus")

// RedisBus implements Bus using Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	pubsub *redis.PubSub
	subs   subscribers
	done   chan struct{}
}

// RedisBusOptions configures the RedisBus.
type RedisBusOptions struct {
	Client  *redis.Client
	Channel string
}

// NewRedisBus returns a new RedisBus using the provided client.
func NewRedisBus(opts RedisBusOptions) *RedisBus {
	ch := opts.Channel
	if ch == "" {
		ch = DefaultRedisChannel
	}
	return &RedisBus{client: opts.Client, channel: ch}
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	ctx, span := tracer.Start(ctx, "RedisBus.Publish", trace.WithAttributes(
		attribute.String("presence.event.kind", string(ev.Kind)),
		attribute.String("presence.name", ev.Name),
	))
	defer span.End()
	data, err := encodeEvent(ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	b.subs.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe. The Redis subscription is shared by all
// local subscribers and opened on first use.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.pubsub == nil {
		ps := b.client.Subscribe(context.Background(), b.channel)
		if _, err := ps.Receive(ctx); err != nil {
			b.mu.Unlock()
			_ = ps.Close()
			return nil, err
		}
		b.pubsub = ps
		b.done = make(chan struct{})
		go b.dispatch(ps, b.done)
	}
	ch := b.subs.add()
	b.mu.Unlock()
	unsubscribeOnDone(ctx, b, ch)
	return ch, nil
}

func (b *RedisBus) dispatch(ps *redis.PubSub, done chan struct{}) {
	defer close(done)
	for msg := range ps.Channel() {
		ev, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			slog.Warn("presence: dropping malformed bus message", "channel", msg.Channel, "error", err)
			continue
		}
		b.subs.deliver(ev)
	}
}

// Unsubscribe implements Bus.Unsubscribe. The Redis subscription is closed
// when the last local subscriber leaves.
func (b *RedisBus) Unsubscribe(ctx context.Context, ch <-chan Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs.remove(ch) > 0 || b.pubsub == nil {
		return nil
	}
	return b.closePubSub()
}

func (b *RedisBus) closePubSub() error {
	err := b.pubsub.Close()
	<-b.done
	b.pubsub = nil
	return err
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return b.subs.metrics()
}

// Close stops delivery and closes every subscriber channel. The Redis client
// is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.pubsub != nil {
		err = b.closePubSub()
	}
	b.subs.closeAll()
	return err
}

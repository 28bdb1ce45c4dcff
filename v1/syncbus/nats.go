package syncbus

import (
	"context"
	"log/slog"
	"sync"

	nats "github.com/nats-io/nats.go"
)

// DefaultNATSSubject is the subject presence events are published on.
const DefaultNATSSubject = "presence.events"

// NATSBus implements Bus using a NATS backend.
type NATSBus struct {
	conn    *nats.Conn
	subject string

	mu   sync.Mutex
	sub  *nats.Subscription
	subs subscribers
}

// NewNATSBus returns a new NATSBus using the provided connection. An empty
// subject selects DefaultNATSSubject.
func NewNATSBus(conn *nats.Conn, subject string) *NATSBus {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSBus{conn: conn, subject: subject}
}

// Publish implements Bus.Publish.
func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return err
	}
	b.subs.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *NATSBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.sub == nil {
		ns, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
			ev, err := decodeEvent(msg.Data)
			if err != nil {
				slog.Warn("presence: dropping malformed bus message", "subject", msg.Subject, "error", err)
				return
			}
			b.subs.deliver(ev)
		})
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		// Make sure the server registered interest before returning, so an
		// immediate Publish is not lost.
		if err := b.conn.Flush(); err != nil {
			_ = ns.Unsubscribe()
			b.mu.Unlock()
			return nil, err
		}
		b.sub = ns
	}
	ch := b.subs.add()
	b.mu.Unlock()
	unsubscribeOnDone(ctx, b, ch)
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *NATSBus) Unsubscribe(ctx context.Context, ch <-chan Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs.remove(ch) > 0 || b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}

// Metrics returns the published and delivered counts.
func (b *NATSBus) Metrics() Metrics {
	return b.subs.metrics()
}

// Close drops the NATS subscription and closes subscriber channels. The
// connection is left open.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.sub != nil {
		err = b.sub.Unsubscribe()
		b.sub = nil
	}
	b.subs.closeAll()
	return err
}

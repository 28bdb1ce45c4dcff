package syncbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// EventKind describes a change in the active set.
type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

// Event announces that a worker appeared in or vanished from the active set.
type Event struct {
	ID   string    `json:"id"`
	Kind EventKind `json:"kind"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// NewEvent returns an Event with a fresh random ID.
func NewEvent(kind EventKind, name string, at time.Time) (Event, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Kind: kind, Name: name, At: at}, nil
}

func encodeEvent(ev Event) ([]byte, error) { return json.Marshal(ev) }

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// Bus propagates presence change events across processes.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel receiving events until ctx is canceled or
	// Unsubscribe is called. Slow subscribers drop events.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Unsubscribe(ctx context.Context, ch <-chan Event) error
}

// Metrics reports bus traffic.
type Metrics struct {
	Published uint64
	Delivered uint64
}

const subscriberBuffer = 16

// subscribers is the local fan-out shared by every Bus implementation.
type subscribers struct {
	mu        sync.Mutex
	chans     []chan Event
	published atomic.Uint64
	delivered atomic.Uint64
}

func (s *subscribers) add() chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	s.chans = append(s.chans, ch)
	s.mu.Unlock()
	return ch
}

// remove closes ch and reports how many subscribers remain.
func (s *subscribers) remove(ch <-chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.chans {
		if c == ch {
			s.chans[i] = s.chans[len(s.chans)-1]
			s.chans = s.chans[:len(s.chans)-1]
			close(c)
			break
		}
	}
	return len(s.chans)
}

func (s *subscribers) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- ev:
			s.delivered.Add(1)
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	for _, ch := range s.chans {
		close(ch)
	}
	s.chans = nil
	s.mu.Unlock()
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans)
}

func (s *subscribers) metrics() Metrics {
	return Metrics{Published: s.published.Load(), Delivered: s.delivered.Load()}
}

// unsubscribeOnDone detaches ch once ctx is canceled.
func unsubscribeOnDone(ctx context.Context, b Bus, ch <-chan Event) {
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), ch)
	}()
}

// InMemoryBus is a local implementation of Bus mainly for testing and
// single-process deployments.
type InMemoryBus struct {
	subs subscribers
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Publish implements Bus.Publish.
func (b *InMemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.subs.published.Add(1)
	b.subs.deliver(ev)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *InMemoryBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := b.subs.add()
	unsubscribeOnDone(ctx, b, ch)
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, ch <-chan Event) error {
	b.subs.remove(ch)
	return nil
}

// Subscribers returns the number of attached subscribers.
func (b *InMemoryBus) Subscribers() int {
	return b.subs.count()
}

// Metrics returns the published and delivered counts.
func (b *InMemoryBus) Metrics() Metrics {
	return b.subs.metrics()
}

package presence

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-presence/v1/adapter"
	"github.com/mirkobrombin/go-presence/v1/metrics"
	"github.com/mirkobrombin/go-presence/v1/syncbus"
)

// Observer polls the active set and publishes a join or leave event for
// every name that appears or disappears between two polls.
type Observer struct {
	store    adapter.Store
	bus      syncbus.Bus
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer

	mu      sync.RWMutex
	current map[string]struct{}
	primed  bool
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithObserverInterval sets the polling interval. It defaults to the renewal
// interval of a default lease.
func WithObserverInterval(d time.Duration) ObserverOption {
	return func(o *Observer) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithObserverClock sets the clock polls are scheduled on.
func WithObserverClock(c clockwork.Clock) ObserverOption {
	return func(o *Observer) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserverLogger sets the logger for poll failures.
func WithObserverLogger(l *slog.Logger) ObserverOption {
	return func(o *Observer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserverTracerProvider sets the OpenTelemetry provider for poll spans.
func WithObserverTracerProvider(tp trace.TracerProvider) ObserverOption {
	return func(o *Observer) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewObserver returns an Observer reading from store and publishing to bus.
// A nil bus only tracks the snapshot.
func NewObserver(store adapter.Store, bus syncbus.Bus, opts ...ObserverOption) *Observer {
	o := &Observer{
		store:    store,
		bus:      bus,
		clock:    clockwork.NewRealClock(),
		interval: RenewInterval(DefaultLeaseTTL),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		current:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Poll reads the active set once, publishes the differences against the
// previous poll and returns the events it produced. The first poll announces
// every live worker as joined.
func (o *Observer) Poll(ctx context.Context) ([]syncbus.Event, error) {
	ctx, span := o.tracer.Start(ctx, "Observer.Poll")
	defer span.End()

	active, err := ActiveSet(ctx, o.store)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("presence.active", len(active)))
	metrics.ActiveGauge.Set(float64(len(active)))

	next := make(map[string]struct{}, len(active))
	for _, n := range active {
		next[n] = struct{}{}
	}

	now := o.clock.Now()
	var events []syncbus.Event
	o.mu.Lock()
	for _, n := range active {
		if _, ok := o.current[n]; !ok {
			ev, err := syncbus.NewEvent(syncbus.EventJoin, n, now)
			if err != nil {
				o.mu.Unlock()
				return nil, err
			}
			events = append(events, ev)
		}
	}
	var gone []string
	for n := range o.current {
		if _, ok := next[n]; !ok {
			gone = append(gone, n)
		}
	}
	slices.Sort(gone)
	for _, n := range gone {
		ev, err := syncbus.NewEvent(syncbus.EventLeave, n, now)
		if err != nil {
			o.mu.Unlock()
			return nil, err
		}
		events = append(events, ev)
	}
	o.current = next
	o.primed = true
	o.mu.Unlock()

	if o.bus != nil {
		for _, ev := range events {
			if err := o.bus.Publish(ctx, ev); err != nil {
				o.logger.Warn("presence: publish event failed", "kind", ev.Kind, "worker", ev.Name, "error", err)
				continue
			}
			metrics.EventCounter.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
	return events, nil
}

// Run polls until ctx is canceled. Store failures are logged and the previous
// snapshot is kept.
func (o *Observer) Run(ctx context.Context) error {
	for {
		if _, err := o.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn("presence: observer poll failed", "error", err)
		}
		t := o.clock.NewTimer(o.interval)
		select {
		case <-t.Chan():
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

// Snapshot returns the active set seen by the last successful poll, sorted.
// The boolean is false before the first successful poll.
func (o *Observer) Snapshot() ([]string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.current))
	for n := range o.current {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, o.primed
}

package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-presence/v1/adapter"
	"github.com/mirkobrombin/go-presence/v1/metrics"
)

// State is the lifecycle state of an Agent.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Agent keeps a single worker name registered in the store.
type Agent struct {
	name     string
	key      string
	store    adapter.Store
	logger   *slog.Logger
	logging  bool
	clock    clockwork.Clock
	leaseTTL time.Duration
	interval time.Duration
	tracer   trace.Tracer

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once

	// cycle serialises Renew so one cycle is in flight at a time.
	cycle sync.Mutex
}

// New validates that name is not held by a live worker and returns an Agent
// for it. Nothing is written until Run, so two agents created with the same
// name before either renews will both start.
func New(ctx context.Context, name string, store adapter.Store, opts ...Option) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyIdentity
	}
	o := defaultAgentOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a := &Agent{
		name:     name,
		key:      Key(name),
		store:    store,
		logger:   o.logger.With("name", name),
		logging:  o.logging,
		clock:    o.clock,
		leaseTTL: o.leaseTTL,
		interval: RenewInterval(o.leaseTTL),
		tracer:   o.tracer,
		stopCh:   make(chan struct{}),
	}
	if a.logging {
		a.logger.Info("presence: launching worker")
	}
	if err := a.validate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) validate(ctx context.Context) error {
	_, found, err := a.store.Get(ctx, a.key)
	if err != nil {
		return &StoreError{Op: "get", Key: a.key, Err: err}
	}
	if found {
		return &DuplicateIdentityError{Name: a.name}
	}
	return nil
}

// Name returns the worker name.
func (a *Agent) Name() string { return a.name }

// LeaseTTL returns the lifetime of the presence key.
func (a *Agent) LeaseTTL() time.Duration { return a.leaseTTL }

// Interval returns the delay between renewals.
func (a *Agent) Interval() time.Duration { return a.interval }

// State returns the current lifecycle state.
func (a *Agent) State() State { return State(a.state.Load()) }

// Stop asks the agent to halt. The next cycle returns ErrStopped without
// writing. The presence key is left to expire.
func (a *Agent) Stop() {
	a.state.Store(int32(StateStopped))
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Run renews the lease until the agent is stopped, ctx is canceled or a store
// call fails. It returns ErrStopped after Stop, ctx.Err() on cancellation and
// an error matching ErrStoreUnavailable on store failure. Failures are not
// retried.
func (a *Agent) Run(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning)) {
		if a.State() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyRunning
	}
	for {
		if a.State() == StateStopped {
			return ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.Renew(ctx); err != nil {
			return err
		}
		t := a.clock.NewTimer(a.interval)
		select {
		case <-t.Chan():
		case <-a.stopCh:
			t.Stop()
			return ErrStopped
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// Renew performs one renewal cycle: it rewrites the presence key with a fresh
// TTL, then lists the active set. The write always precedes the list so the
// returned set includes this worker. Run calls it on every cycle; callers
// driving renewals by hand may use it instead of Run. Concurrent calls,
// including one racing Run, are serialised.
func (a *Agent) Renew(ctx context.Context) ([]string, error) {
	a.cycle.Lock()
	defer a.cycle.Unlock()
	if a.State() == StateStopped {
		return nil, ErrStopped
	}
	ctx, span := a.tracer.Start(ctx, "Agent.Renew", trace.WithAttributes(
		attribute.String("presence.name", a.name),
		attribute.Int64("presence.lease_ms", a.leaseTTL.Milliseconds()),
	))
	defer span.End()

	if err := a.store.SetEx(ctx, a.key, a.name, a.leaseTTL); err != nil {
		return nil, a.fail(span, &StoreError{Op: "setex", Key: a.key, Err: err})
	}
	active, err := ActiveSet(ctx, a.store)
	if err != nil {
		return nil, a.fail(span, err)
	}
	metrics.RenewalCounter.Inc()
	metrics.ActiveGauge.Set(float64(len(active)))
	span.SetAttributes(attribute.Int("presence.active", len(active)))
	if a.logging {
		a.logger.Info("presence: running workers", "count", len(active), "workers", strings.Join(active, ", "))
	}
	return active, nil
}

func (a *Agent) fail(span trace.Span, err error) error {
	metrics.RenewalFailureCounter.Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

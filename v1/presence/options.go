package presence

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mirkobrombin/go-presence/v1/presence"

type agentOptions struct {
	logger   *slog.Logger
	logging  bool
	clock    clockwork.Clock
	leaseTTL time.Duration
	tracer   trace.Tracer
}

// Option configures an Agent.
type Option func(*agentOptions)

// WithLogger sets the logger used for startup and active set lines.
func WithLogger(l *slog.Logger) Option {
	return func(o *agentOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLogging toggles the startup and per-cycle log lines. Enabled by default.
func WithLogging(enabled bool) Option {
	return func(o *agentOptions) {
		o.logging = enabled
	}
}

// WithClock sets the clock renewals are scheduled on.
func WithClock(c clockwork.Clock) Option {
	return func(o *agentOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLeaseTTL overrides DefaultLeaseTTL. Non-positive values are ignored.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(o *agentOptions) {
		if ttl > 0 {
			o.leaseTTL = ttl
		}
	}
}

// WithTracerProvider sets the OpenTelemetry provider renewal spans are
// recorded on. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *agentOptions) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

func defaultAgentOptions() agentOptions {
	return agentOptions{
		logger:   slog.Default(),
		logging:  true,
		clock:    clockwork.NewRealClock(),
		leaseTTL: DefaultLeaseTTL,
		tracer:   otel.Tracer(tracerName),
	}
}

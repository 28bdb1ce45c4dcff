package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RenewalCounter tracks successful lease renewals. It carries no worker
	// label: names can be random per launch and would grow series unbounded.
	RenewalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_renewals_total",
		Help: "Total number of successful presence lease renewals",
	})
	// RenewalFailureCounter tracks renewal cycles that failed on the store.
	RenewalFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_renewal_failures_total",
		Help: "Total number of presence renewal cycles that failed",
	})
	// ActiveGauge reports the size of the last observed active set.
	ActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_active_workers",
		Help: "Number of workers in the last observed active set",
	})
	// EventCounter tracks presence change events published to a bus.
	EventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_events_published_total",
		Help: "Total number of presence change events published",
	}, []string{"kind"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterPresenceMetrics registers the presence collectors on the provided
// registry.
func RegisterPresenceMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RenewalCounter, RenewalFailureCounter, ActiveGauge, EventCounter)
}

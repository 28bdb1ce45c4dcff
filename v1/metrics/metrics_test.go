package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterPresenceMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterPresenceMetrics(reg)
	RenewalCounter.Inc()
	RenewalFailureCounter.Inc()
	ActiveGauge.Set(5)
	EventCounter.WithLabelValues("join").Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) < 4 {
		t.Fatalf("expected metrics registered")
	}
}

func TestRegisterPresenceMetricsDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterPresenceMetrics(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterPresenceMetrics(reg)
}

func TestRenewalCountersCarryNoLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterPresenceMetrics(reg)
	RenewalCounter.Inc()
	RenewalFailureCounter.Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := 0
	for _, mf := range mfs {
		switch mf.GetName() {
		case "presence_renewals_total", "presence_renewal_failures_total":
			seen++
			if n := len(mf.GetMetric()); n != 1 {
				t.Fatalf("%s: expected one series, got %d", mf.GetName(), n)
			}
			if labels := mf.GetMetric()[0].GetLabel(); len(labels) != 0 {
				t.Fatalf("%s: expected no labels, got %v", mf.GetName(), labels)
			}
		}
	}
	if seen != 2 {
		t.Fatalf("expected both renewal counters gathered, saw %d", seen)
	}
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistererRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.InvoicesClosed == nil || m.HTTPRequests == nil || m.VersionConflicts == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.InvoicesClosed.WithLabelValues("true").Inc()
	m.PartialPayments.WithLabelValues("registered").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "cardledger_invoices_closed_total" {
			found = true
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Fatalf("expected closed counter 1, got %v", got)
			}
		}
	}
	if !found {
		t.Fatal("expected cardledger_invoices_closed_total to be gathered")
	}
}

func TestNewWithRegistererIsolatesRegistries(t *testing.T) {
	// Separate registries must not collide on metric names.
	_ = NewWithRegisterer(prometheus.NewRegistry())
	_ = NewWithRegisterer(prometheus.NewRegistry())
}

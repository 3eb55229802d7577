package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/revledger/internal/usecase"
)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegistry(registry)

	if m.EventsProcessed == nil || m.AppendRetries == nil || m.Verifications == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.IncAppendRetry()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}
}

func TestObserveOutcome(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveOutcome(usecase.OutcomeAccepted, 10*time.Millisecond)
	m.ObserveOutcome(usecase.OutcomeAccepted, 20*time.Millisecond)
	m.ObserveOutcome(usecase.OutcomeDuplicate, time.Millisecond)

	if got := testutil.ToFloat64(m.EventsProcessed.WithLabelValues("accepted")); got != 2 {
		t.Fatalf("expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(m.EventsProcessed.WithLabelValues("duplicate")); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
}

func TestObserveVerification(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveVerification(true, 42, time.Millisecond)
	if got := testutil.ToFloat64(m.ChainValid); got != 1 {
		t.Fatalf("expected chain valid gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChainLength); got != 42 {
		t.Fatalf("expected chain length 42, got %v", got)
	}

	m.ObserveVerification(false, 7, time.Millisecond)
	if got := testutil.ToFloat64(m.ChainValid); got != 0 {
		t.Fatalf("expected chain valid gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.Verifications.WithLabelValues("broken")); got != 1 {
		t.Fatalf("expected 1 broken verification, got %v", got)
	}
}

func TestWorkerCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncPublished("ledger.entry_recorded")
	m.IncAlert("critical")
	m.IncAlert("critical")
	m.AddDedupPruned(12)

	if got := testutil.ToFloat64(m.OutboxPublished.WithLabelValues("ledger.entry_recorded")); got != 1 {
		t.Fatalf("expected 1 published, got %v", got)
	}
	if got := testutil.ToFloat64(m.AlertsSent.WithLabelValues("critical")); got != 2 {
		t.Fatalf("expected 2 critical alerts, got %v", got)
	}
	if got := testutil.ToFloat64(m.DedupPruned); got != 12 {
		t.Fatalf("expected 12 pruned, got %v", got)
	}
}

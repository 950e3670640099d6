package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"SignalDesk/internal/domain/repository"
)

var _ repository.Metrics = (*Recorder)(nil)

// counter sums every series of the named counter family.
func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordDecision("ghost", 72)
	r.RecordDecision("ghost", 80)
	r.RecordDecision("emit", 91)
	r.RecordTransition("ENTRY_HIT")
	r.RecordSweep("ttl", 3)
	r.RecordSweep("ttl", 0)

	if got := counter(t, reg, "signaldesk_decisions_total"); got != 3 {
		t.Fatalf("decisions = %v, want 3", got)
	}
	if got := counter(t, reg, "signaldesk_lifecycle_transitions_total"); got != 1 {
		t.Fatalf("transitions = %v, want 1", got)
	}
	if got := counter(t, reg, "signaldesk_lifecycle_sweeps_total"); got != 2 {
		t.Fatalf("sweeps = %v, want 2", got)
	}
	if got := counter(t, reg, "signaldesk_lifecycle_swept_signals_total"); got != 3 {
		t.Fatalf("swept = %v, want 3", got)
	}
}

func TestRecorderRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegisterer(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("registering twice must panic")
		}
	}()
	NewWithRegisterer(reg)
}

package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestObserveReadinessSetsGauges(t *testing.T) {
	r, reg := New()
	r.ObserveReadiness(3, 5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var appendGauge, nullifyGauge *dto.MetricFamily
	for _, f := range families {
		switch f.GetName() {
		case "forester_append_ready":
			appendGauge = f
		case "forester_nullify_ready":
			nullifyGauge = f
		}
	}
	if appendGauge == nil || nullifyGauge == nil {
		t.Fatal("expected both readiness gauges to be registered")
	}
	if got := appendGauge.Metric[0].GetGauge().GetValue(); got != 3 {
		t.Fatalf("append ready gauge = %v, want 3", got)
	}
	if got := nullifyGauge.Metric[0].GetGauge().GetValue(); got != 5 {
		t.Fatalf("nullify ready gauge = %v, want 5", got)
	}
}

func TestIncRetriesLabelsByReason(t *testing.T) {
	r, reg := New()
	r.IncRetries("photon_stale")
	r.IncRetries("photon_stale")
	r.IncRetries("constraint_error")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "forester_retries_total" {
			continue
		}
		total := 0.0
		for _, m := range f.Metric {
			total += m.GetCounter().GetValue()
		}
		if total != 3 {
			t.Fatalf("total retries = %v, want 3", total)
		}
	}
}

func TestNoOpRecorderDoesNotPanic(t *testing.T) {
	var r NoOp
	r.ObserveSyncDuration(1.0)
	r.ObserveReadiness(1, 2)
	r.ObservePipelineDuration(1.0)
	r.ObserveSubmitDuration(1.0)
	r.IncRetries("x")
	r.IncIterations("ok")
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.Transition("created", "submitted", "ack")
	r.Transition("created", "submitted", "ack")
	r.SweepOutcome("submit", "errored", 3)
	r.SweepOutcome("submit", "errored", 0)
	r.Sweep("submit", 10*time.Millisecond)

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("created", "submitted", "ack")); got != 2 {
		t.Fatalf("transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.sweepOutcomes.WithLabelValues("submit", "errored")); got != 3 {
		t.Fatalf("outcomes = %v, want 3", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Transition("a", "b", "c")
	r.Sweep("x", time.Second)
	r.SweepOutcome("x", "y", 1)
	r.BrokerCall("sim", "place", "ok", time.Second)
	r.SinkFailure("kafka")
}

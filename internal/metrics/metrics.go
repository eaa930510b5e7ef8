// Package metrics exposes executor counters on an injected registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is nil-safe: a nil *Recorder drops every observation.
type Recorder struct {
	transitions   *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	sweepOutcomes *prometheus.CounterVec
	brokerLatency *prometheus.HistogramVec
	sinkFailures  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypercopy",
			Name:      "plan_transitions_total",
			Help:      "Order plan status transitions by event kind.",
		}, []string{"from", "to", "event"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hypercopy",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one scheduler or stop-loss pass.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
		sweepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypercopy",
			Name:      "sweep_plans_total",
			Help:      "Plans handled by sweeps, by outcome.",
		}, []string{"sweep", "outcome"}),
		brokerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hypercopy",
			Name:      "broker_call_duration_seconds",
			Help:      "Broker call latency by operation and result.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"broker", "op", "result"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hypercopy",
			Name:      "event_sink_failures_total",
			Help:      "Exec events a sink failed to deliver.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(r.transitions, r.sweepDuration, r.sweepOutcomes, r.brokerLatency, r.sinkFailures)
	}
	return r
}

func (r *Recorder) Transition(from, to, event string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to, event).Inc()
}

func (r *Recorder) Sweep(name string, d time.Duration) {
	if r == nil {
		return
	}
	r.sweepDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (r *Recorder) SweepOutcome(name, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sweepOutcomes.WithLabelValues(name, outcome).Add(float64(n))
}

func (r *Recorder) BrokerCall(broker, op, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.brokerLatency.WithLabelValues(broker, op, result).Observe(d.Seconds())
}

func (r *Recorder) SinkFailure(sink string) {
	if r == nil {
		return
	}
	r.sinkFailures.WithLabelValues(sink).Inc()
}

// Package metrics exposes Prometheus counters for commitment transitions,
// sweeps and payment events. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	transitions   *prometheus.CounterVec
	sweepRuns     *prometheus.CounterVec
	sweepFailures *prometheus.CounterVec
	paymentEvents *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// serve them from promhttp.Handler().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redemption",
			Subsystem: "commitment",
			Name:      "transitions_total",
			Help:      "Committed commitment state transitions.",
		}, []string{"from", "to"}),
		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redemption",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Completed sweep runs by sweep.",
		}, []string{"sweep"}),
		sweepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redemption",
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Commitments a sweep failed to process.",
		}, []string{"sweep"}),
		paymentEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redemption",
			Subsystem: "payment",
			Name:      "events_total",
			Help:      "Payment lifecycle events by type.",
		}, []string{"event"}),
	}
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// SweepRun records one finished run and the number of items it failed on.
func (m *Metrics) SweepRun(sweep string, failures int) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(sweep).Inc()
	if failures > 0 {
		m.sweepFailures.WithLabelValues(sweep).Add(float64(failures))
	}
}

func (m *Metrics) PaymentEvent(event string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(event).Inc()
}

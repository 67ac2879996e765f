package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors recorded by the sweeper and observer.
type Metrics struct {
	sweepCycles   prometheus.Counter
	sweepDuration prometheus.Histogram
	grantOutcomes *prometheus.CounterVec
	pendingGrants prometheus.Gauge
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		sweepCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_cycles_total",
				Help:      "Total number of completed expiry sweep cycles",
			},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of expiry sweep cycles",
				Buckets:   prometheus.DefBuckets,
			},
		),
		grantOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grant_outcomes_total",
				Help:      "Expired grant processing outcomes (revoked, cleaned, retained, error)",
			},
			[]string{"outcome"},
		),
		pendingGrants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_grants",
				Help:      "Number of grants currently awaiting automatic revocation",
			},
		),
	}
}

func (m *Metrics) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.sweepCycles,
		m.sweepDuration,
		m.grantOutcomes,
		m.pendingGrants,
	}
}

// RecordSweep records one completed sweep cycle and its per-row outcomes.
func (m *Metrics) RecordSweep(duration time.Duration, revoked, cleaned, retained, errored int) {
	if m == nil {
		return
	}

	m.sweepCycles.Inc()
	m.sweepDuration.Observe(duration.Seconds())
	m.grantOutcomes.WithLabelValues("revoked").Add(float64(revoked))
	m.grantOutcomes.WithLabelValues("cleaned").Add(float64(cleaned))
	m.grantOutcomes.WithLabelValues("retained").Add(float64(retained))
	m.grantOutcomes.WithLabelValues("error").Add(float64(errored))
}

// SetPendingGrants updates the pending-revocation gauge.
func (m *Metrics) SetPendingGrants(n int64) {
	if m == nil {
		return
	}
	m.pendingGrants.Set(float64(n))
}

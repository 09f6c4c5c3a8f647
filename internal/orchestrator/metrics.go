package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's round-trip counters and latencies.
type Metrics struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Round-trip outcomes, used as the status label.
const (
	statusOK    = "ok"
	statusError = "error"
)

// NewMetrics creates the orchestrator metrics. They are registered to reg
// when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedplan",
			Name:      "queries_total",
			Help:      "Total number of transport round trips by engine, request kind and outcome.",
		}, []string{"engine", "kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fedplan",
			Name:      "query_duration_seconds",
			Help:      "Latency of transport round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.queries, m.duration)
	}
	return m
}

func (m *Metrics) observe(engine, kind string, start time.Time, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}
	m.queries.WithLabelValues(engine, kind, status).Inc()
	m.duration.WithLabelValues(engine, kind).Observe(time.Since(start).Seconds())
}

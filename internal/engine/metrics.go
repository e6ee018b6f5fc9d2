package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments executions. A nil *Metrics records nothing.
type Metrics struct {
	fetchDuration *prometheus.HistogramVec
	rows          *prometheus.CounterVec
	executions    *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on r.
func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		fetchDuration: promauto.With(r).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fedq_fetch_duration_seconds",
			Help:    "Time spent in source adapter Fetch calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		rows: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "fedq_rows_total",
			Help: "Rows produced, by node kind.",
		}, []string{"kind"}),
		executions: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "fedq_executions_total",
			Help: "Execution requests, by outcome.",
		}, []string{"status"}),
	}
}

func (m *Metrics) observeFetch(sourceName string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(sourceName).Observe(d.Seconds())
}

func (m *Metrics) addRows(kind string, n int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) execution(err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case IsCancelled(err):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	m.executions.WithLabelValues(status).Inc()
}

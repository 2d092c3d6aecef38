package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics collects job counters for the /metrics endpoint.
type Metrics struct {
	jobs     *prometheus.CounterVec
	attempts prometheus.Counter
	items    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	rejected prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch404_jobs_total",
			Help: "Jobs completed, by type and outcome.",
		}, []string{"type", "outcome"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fetch404_job_attempts_total",
			Help: "Mirror attempts made across all jobs.",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch404_items_total",
			Help: "Items delivered, by job type.",
		}, []string{"type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetch404_job_latency_seconds",
			Help:    "Wall time of a job from intake to published envelope.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"type"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fetch404_jobs_rejected_total",
			Help: "Requests rejected as duplicates of a recent indicator.",
		}),
	}

	reg.MustRegister(m.jobs, m.attempts, m.items, m.latency, m.rejected)
	return m
}

func (m *Metrics) RecordJob(kind string, success bool, attempts, items int, took time.Duration) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.jobs.WithLabelValues(kind, outcome).Inc()
	m.attempts.Add(float64(attempts))
	m.items.WithLabelValues(kind).Add(float64(items))
	m.latency.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) RecordRejected() {
	m.rejected.Inc()
}

// MetricsHandler serves everything registered on the gatherer.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

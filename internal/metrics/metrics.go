// Package metrics holds the Prometheus collectors of the transcriber.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcriber"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	Recognitions *prometheus.CounterVec
	Jobs         *prometheus.CounterVec
	JobDuration  prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Transcript lookups served from the cache.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Transcript lookups that ran recognition.",
		}),
		Recognitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Recognition engine invocations by tier and result.",
		}, []string{"tier", "result"}),
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by source and final status.",
		}, []string{"source", "status"}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job pickup to completion.",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) Recognition(tier, result string) {
	if m != nil {
		m.Recognitions.WithLabelValues(tier, result).Inc()
	}
}

func (m *Metrics) JobFinished(source, status string, seconds float64) {
	if m != nil {
		m.Jobs.WithLabelValues(source, status).Inc()
		m.JobDuration.Observe(seconds)
	}
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the cache-invalidation worker that consumes
// document-change events.
type WorkerMetrics struct {
	registry *prometheus.Registry

	invalidationTotal    *prometheus.CounterVec
	invalidationDuration *prometheus.HistogramVec
	invalidationInFlight prometheus.Gauge
	entriesDropped       *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	invalidationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragqa",
			Subsystem: "worker",
			Name:      "cache_invalidation_total",
			Help:      "Total processed cache invalidation events by status.",
		},
		[]string{"service", "status"},
	)
	invalidationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragqa",
			Subsystem: "worker",
			Name:      "cache_invalidation_duration_seconds",
			Help:      "Cache invalidation duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	invalidationInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragqa",
			Subsystem: "worker",
			Name:      "cache_invalidation_in_flight",
			Help:      "Number of in-flight cache invalidation events.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	entriesDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragqa",
			Subsystem: "worker",
			Name:      "cache_entries_dropped_total",
			Help:      "Total cache entries removed by invalidation events.",
		},
		[]string{"service"},
	)

	registry.MustRegister(invalidationTotal, invalidationDuration, invalidationInFlight, entriesDropped)

	return &WorkerMetrics{
		registry:             registry,
		invalidationTotal:    invalidationTotal,
		invalidationDuration: invalidationDuration,
		invalidationInFlight: invalidationInFlight,
		entriesDropped:       entriesDropped,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartInvalidation() {
	m.invalidationInFlight.Inc()
}

func (m *WorkerMetrics) FinishInvalidation(service string, duration time.Duration, dropped int64, err error) {
	m.invalidationInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.invalidationTotal.WithLabelValues(service, status).Inc()
	m.invalidationDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if dropped > 0 {
		m.entriesDropped.WithLabelValues(service).Add(float64(dropped))
	}
}

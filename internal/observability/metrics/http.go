package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrieval *RetrievalMetrics
}

// RetrievalMetrics records retrieval pipeline observations: cache
// lookups, search mode usage, and rerank outcomes.
type RetrievalMetrics struct {
	service string

	cacheLookupsTotal   *prometheus.CounterVec
	cacheLookupDuration *prometheus.HistogramVec
	searchModeTotal     *prometheus.CounterVec
	rerankTotal         *prometheus.CounterVec
	rerankDuration      *prometheus.HistogramVec
	answerSources       *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		retrieval:       newRetrievalMetrics(registry, service),
	}
}

func newRetrievalMetrics(registry *prometheus.Registry, service string) *RetrievalMetrics {
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragqa",
			Subsystem: "retrieval",
			Name:      "cache_lookups_total",
			Help:      "Total retrieval cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	cacheLookupDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragqa",
			Subsystem: "retrieval",
			Name:      "request_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds by cache outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	searchModeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragqa",
			Subsystem: "retrieval",
			Name:      "search_mode_total",
			Help:      "Total retrieval requests by resolved search mode.",
		},
		[]string{"service", "mode"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragqa",
			Subsystem: "retrieval",
			Name:      "rerank_total",
			Help:      "Total rerank attempts by status.",
		},
		[]string{"service", "status"},
	)
	rerankDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragqa",
			Subsystem: "retrieval",
			Name:      "rerank_duration_seconds",
			Help:      "Rerank duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	answerSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragqa",
			Subsystem: "qa",
			Name:      "answer_sources",
			Help:      "Distribution of source chunks per generated answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)

	registry.MustRegister(cacheLookupsTotal, cacheLookupDuration, searchModeTotal, rerankTotal, rerankDuration, answerSources)

	return &RetrievalMetrics{
		service:             service,
		cacheLookupsTotal:   cacheLookupsTotal,
		cacheLookupDuration: cacheLookupDuration,
		searchModeTotal:     searchModeTotal,
		rerankTotal:         rerankTotal,
		rerankDuration:      rerankDuration,
		answerSources:       answerSources,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Retrieval() *RetrievalMetrics {
	return m.retrieval
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/qa/sessions/"):
		return "/v1/qa/sessions/{session_id}"
	default:
		return path
	}
}

func (m *RetrievalMetrics) ObserveCacheHit(elapsed time.Duration) {
	m.cacheLookupsTotal.WithLabelValues(m.service, "hit").Inc()
	m.cacheLookupDuration.WithLabelValues(m.service, "hit").Observe(elapsed.Seconds())
}

func (m *RetrievalMetrics) ObserveCacheMiss(elapsed time.Duration) {
	m.cacheLookupsTotal.WithLabelValues(m.service, "miss").Inc()
	m.cacheLookupDuration.WithLabelValues(m.service, "miss").Observe(elapsed.Seconds())
}

func (m *RetrievalMetrics) ObserveSearchMode(mode string) {
	if mode == "" {
		mode = "unknown"
	}
	m.searchModeTotal.WithLabelValues(m.service, mode).Inc()
}

func (m *RetrievalMetrics) ObserveRerank(success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.rerankTotal.WithLabelValues(m.service, status).Inc()
	m.rerankDuration.WithLabelValues(m.service).Observe(elapsed.Seconds())
}

func (m *RetrievalMetrics) ObserveAnswerSources(count int) {
	m.answerSources.WithLabelValues(m.service).Observe(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

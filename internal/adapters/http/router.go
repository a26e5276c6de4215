package httpadapter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
)

// TrafficPolicy bounds inbound load. Zero values disable the
// corresponding gate.
type TrafficPolicy struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	QueueTimeout   time.Duration
}

type Router struct {
	retrieval ports.RetrievalService
	qa        ports.QuestionAnswerer
	sessions  ports.SessionReader
	logger    *slog.Logger
}

func NewRouter(
	retrieval ports.RetrievalService,
	qa ports.QuestionAnswerer,
	sessions ports.SessionReader,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		retrieval: retrieval,
		qa:        qa,
		sessions:  sessions,
		logger:    logger,
	}
}

func (rt *Router) Handler(policy TrafficPolicy) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/qa/ask", rt.askQuestion)
	mux.HandleFunc("/v1/qa/sessions/", rt.sessionHistory)
	mux.HandleFunc("/v1/retrieval/search", rt.search)
	mux.HandleFunc("/v1/retrieval/config", rt.updateConfig)
	mux.HandleFunc("/v1/retrieval/statistics", rt.statistics)
	mux.HandleFunc("/v1/retrieval/statistics/reset", rt.resetStatistics)
	mux.HandleFunc("/v1/retrieval/cache", rt.cache)
	mux.HandleFunc("/v1/retrieval/cache/warmup", rt.warmUpCache)

	handler := http.Handler(mux)
	if policy.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, policy.MaxConcurrent, policy.QueueTimeout)
	}
	if policy.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, policy.RateLimitRPS, policy.RateLimitBurst)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

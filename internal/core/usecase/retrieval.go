package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
)

// resultCache is the narrow cache surface the orchestrator depends on.
type resultCache interface {
	Get(ctx context.Context, query string, cfg domain.RetrievalConfig, extra map[string]any) ([]domain.ScoredResult, bool)
	Put(ctx context.Context, query string, cfg domain.RetrievalConfig, results []domain.ScoredResult, extra map[string]any)
	Clear(ctx context.Context, pattern string) int
	Info(ctx context.Context) map[string]any
	WarmUp(ctx context.Context, entries []domain.WarmUpEntry, fetch FetchFunc) int
	Statistics() CacheStatisticsSnapshot
	ResetStatistics()
	Enabled() bool
}

// strategyRouter is the narrow router surface the orchestrator depends on.
type strategyRouter interface {
	Search(ctx context.Context, query string, cfg domain.RetrievalConfig) ([]domain.ScoredResult, error)
	UsageStatistics() map[string]any
	ResetStatistics()
	HealthCheck() map[string]any
}

// MetricsRecorder receives pipeline observations. Implementations must be
// safe for concurrent use; a nil recorder disables recording.
type MetricsRecorder interface {
	ObserveCacheHit(elapsed time.Duration)
	ObserveCacheMiss(elapsed time.Duration)
	ObserveSearchMode(mode string)
	ObserveRerank(success bool, elapsed time.Duration)
}

type rerankStatistics struct {
	requests      atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
}

type pathStatistics struct {
	hits          atomic.Int64
	misses        atomic.Int64
	totalHitTime  atomic.Int64 // nanoseconds
	totalMissTime atomic.Int64 // nanoseconds
}

// RetrievalOrchestrator is the single call surface for "get ranked results
// for this query under this config". It composes cache, routing, and
// reranking with an independent failure domain per stage: cache and rerank
// outages degrade quality or latency, never availability.
type RetrievalOrchestrator struct {
	cache    resultCache
	router   strategyRouter
	reranker ports.Reranker
	logger   *slog.Logger
	metrics  MetricsRecorder

	mu         sync.RWMutex
	defaultCfg domain.RetrievalConfig

	rerankStats rerankStatistics
	pathStats   pathStatistics
}

func NewRetrievalOrchestrator(
	cache *ResultCache,
	router *SearchStrategyRouter,
	reranker ports.Reranker,
	defaultCfg domain.RetrievalConfig,
	logger *slog.Logger,
	metrics MetricsRecorder,
) (*RetrievalOrchestrator, error) {
	if err := defaultCfg.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new retrieval orchestrator", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalOrchestrator{
		cache:      cache,
		router:     router,
		reranker:   reranker,
		logger:     logger,
		metrics:    metrics,
		defaultCfg: defaultCfg,
	}, nil
}

// Search runs the cache → retrieval → rerank → write-back pipeline.
// Retrieval-stage errors propagate; cache and rerank errors never do.
func (o *RetrievalOrchestrator) Search(ctx context.Context, query string, cfg *domain.RetrievalConfig) ([]domain.ScoredResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieval search", fmt.Errorf("query is empty"))
	}
	resolved := o.DefaultConfig()
	if cfg != nil {
		resolved = *cfg
	}
	if err := resolved.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieval search", err)
	}
	if o.metrics != nil {
		o.metrics.ObserveSearchMode(string(resolved.SearchMode))
	}

	start := time.Now()
	if cached, ok := o.cache.Get(ctx, query, resolved, nil); ok {
		elapsed := time.Since(start)
		o.pathStats.hits.Add(1)
		o.pathStats.totalHitTime.Add(int64(elapsed))
		if o.metrics != nil {
			o.metrics.ObserveCacheHit(elapsed)
		}
		o.logger.Debug("retrieval_cache_hit", "results", len(cached), "elapsed_ms", durationMillis(elapsed))
		return cached, nil
	}

	results, err := o.router.Search(ctx, query, resolved)
	if err != nil {
		return nil, err
	}

	if resolved.EnableRerank && o.reranker != nil && len(results) > 0 {
		results = o.rerank(ctx, query, results, resolved)
	}

	o.cache.Put(ctx, query, resolved, results, nil)

	elapsed := time.Since(start)
	o.pathStats.misses.Add(1)
	o.pathStats.totalMissTime.Add(int64(elapsed))
	if o.metrics != nil {
		o.metrics.ObserveCacheMiss(elapsed)
	}
	return results, nil
}

// rerank applies the reranking collaborator in its own failure domain. On
// any error the pre-rerank ordering is returned untouched.
func (o *RetrievalOrchestrator) rerank(ctx context.Context, query string, results []domain.ScoredResult, cfg domain.RetrievalConfig) []domain.ScoredResult {
	o.rerankStats.requests.Add(1)
	start := time.Now()

	reranked, err := o.reranker.Rerank(ctx, query, results, cfg)
	elapsed := time.Since(start)
	o.rerankStats.totalDuration.Add(int64(elapsed))

	if err != nil {
		o.rerankStats.failures.Add(1)
		if o.metrics != nil {
			o.metrics.ObserveRerank(false, elapsed)
		}
		o.logger.Warn("rerank_failed_keeping_retrieval_order", "error", err)
		return results
	}
	o.rerankStats.successes.Add(1)
	if o.metrics != nil {
		o.metrics.ObserveRerank(true, elapsed)
	}
	return reranked
}

func (o *RetrievalOrchestrator) DefaultConfig() domain.RetrievalConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.defaultCfg
}

// UpdateDefaultConfig validates and swaps the fallback config used when a
// request supplies none.
func (o *RetrievalOrchestrator) UpdateDefaultConfig(cfg domain.RetrievalConfig) error {
	if err := cfg.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "update default config", err)
	}
	o.mu.Lock()
	o.defaultCfg = cfg
	o.mu.Unlock()
	o.logger.Info("default_retrieval_config_updated",
		"mode", string(cfg.SearchMode), "top_k", cfg.TopK, "rerank", cfg.EnableRerank, "cache", cfg.EnableCache)
	return nil
}

// Statistics aggregates router, cache, rerank, and hit/miss path counters
// into plain nested maps.
func (o *RetrievalOrchestrator) Statistics(ctx context.Context) map[string]any {
	cacheSnap := o.cache.Statistics()

	rerankRequests := o.rerankStats.requests.Load()
	rerank := map[string]any{
		"requests":        rerankRequests,
		"successes":       o.rerankStats.successes.Load(),
		"failures":        o.rerankStats.failures.Load(),
		"success_rate":    0.0,
		"avg_duration_ms": 0.0,
	}
	if rerankRequests > 0 {
		rerank["success_rate"] = float64(o.rerankStats.successes.Load()) / float64(rerankRequests)
		rerank["avg_duration_ms"] = durationMillis(time.Duration(o.rerankStats.totalDuration.Load())) / float64(rerankRequests)
	}

	hits := o.pathStats.hits.Load()
	misses := o.pathStats.misses.Load()
	requests := map[string]any{
		"cache_hits":          hits,
		"cache_misses":        misses,
		"avg_hit_latency_ms":  0.0,
		"avg_miss_latency_ms": 0.0,
	}
	if hits > 0 {
		requests["avg_hit_latency_ms"] = durationMillis(time.Duration(o.pathStats.totalHitTime.Load())) / float64(hits)
	}
	if misses > 0 {
		requests["avg_miss_latency_ms"] = durationMillis(time.Duration(o.pathStats.totalMissTime.Load())) / float64(misses)
	}

	return map[string]any{
		"router": o.router.UsageStatistics(),
		"cache": map[string]any{
			"total_requests": cacheSnap.TotalRequests,
			"hits":           cacheSnap.Hits,
			"misses":         cacheSnap.Misses,
			"errors":         cacheSnap.Errors,
			"hit_rate":       cacheSnap.HitRate,
			"miss_rate":      cacheSnap.MissRate,
			"error_rate":     cacheSnap.ErrorRate,
		},
		"rerank":   rerank,
		"requests": requests,
	}
}

// ResetStatistics zeroes router, cache, rerank, and path counters.
func (o *RetrievalOrchestrator) ResetStatistics() {
	o.router.ResetStatistics()
	o.cache.ResetStatistics()
	o.rerankStats.requests.Store(0)
	o.rerankStats.successes.Store(0)
	o.rerankStats.failures.Store(0)
	o.rerankStats.totalDuration.Store(0)
	o.pathStats.hits.Store(0)
	o.pathStats.misses.Store(0)
	o.pathStats.totalHitTime.Store(0)
	o.pathStats.totalMissTime.Store(0)
}

func (o *RetrievalOrchestrator) ClearCache(ctx context.Context, pattern string) int {
	return o.cache.Clear(ctx, pattern)
}

// WarmUpCache pre-computes and caches entries that are not yet present,
// running each missing entry through the same router and rerank stages a
// live miss would take, so warmed entries match later hot-path results.
func (o *RetrievalOrchestrator) WarmUpCache(ctx context.Context, entries []domain.WarmUpEntry) int {
	return o.cache.WarmUp(ctx, entries, func(ctx context.Context, query string, cfg domain.RetrievalConfig) ([]domain.ScoredResult, error) {
		results, err := o.router.Search(ctx, query, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.EnableRerank && o.reranker != nil && len(results) > 0 {
			results = o.rerank(ctx, query, results, cfg)
		}
		return results, nil
	})
}

func (o *RetrievalOrchestrator) CacheInfo(ctx context.Context) map[string]any {
	return o.cache.Info(ctx)
}

// HealthCheck aggregates router, cache, and reranker health. Only the
// router gates overall health; cache and reranker degrade gracefully.
func (o *RetrievalOrchestrator) HealthCheck(ctx context.Context) map[string]any {
	routerHealth := o.router.HealthCheck()
	rerankerHealthy := o.reranker != nil && o.reranker.Healthy(ctx)

	status := "healthy"
	if routerHealth["status"] != "healthy" {
		status = "unhealthy"
	}
	return map[string]any{
		"status":           status,
		"router":           routerHealth,
		"cache_enabled":    o.cache.Enabled(),
		"reranker_healthy": rerankerHealthy,
	}
}

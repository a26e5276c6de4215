package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
)

// Hybrid blend weights are a design constant, not a config field; see
// DESIGN.md for the open question around making them configurable.
const (
	hybridSemanticWeight = 0.7
	hybridKeywordWeight  = 0.3
)

const fallbackBucket = "semantic_fallback"

type dispatchStatus int

const (
	dispatchOK dispatchStatus = iota
	// dispatchRecoverable: the chosen strategy failed but semantic
	// fallback is still available.
	dispatchRecoverable
	// dispatchFatal: the semantic path itself failed; nothing to fall
	// back to.
	dispatchFatal
)

type dispatchOutcome struct {
	status  dispatchStatus
	results []domain.ScoredResult
	err     error
}

// SearchStrategyRouter dispatches a query to one retrieval strategy and
// falls back to semantic search when a non-semantic strategy fails. The
// router is stateless per request; only aggregate statistics persist.
type SearchStrategyRouter struct {
	retriever ports.BaseRetriever
	logger    *slog.Logger
	stats     *routerStatistics
}

func NewSearchStrategyRouter(retriever ports.BaseRetriever, logger *slog.Logger) *SearchStrategyRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchStrategyRouter{
		retriever: retriever,
		logger:    logger,
		stats:     newRouterStatistics(),
	}
}

// Search routes the query to the configured strategy. An unrecognized mode
// downgrades to semantic (fail open) so malformed configuration never
// blocks answering.
func (r *SearchStrategyRouter) Search(ctx context.Context, query string, cfg domain.RetrievalConfig) ([]domain.ScoredResult, error) {
	mode := cfg.SearchMode
	if !mode.Valid() {
		r.stats.recordError("unsupported_mode:" + string(mode))
		r.logger.Warn("unsupported_search_mode", "mode", string(mode), "resolved", string(domain.SearchModeSemantic))
		mode = domain.SearchModeSemantic
	}
	r.stats.recordRequest(mode)

	start := time.Now()
	out := r.dispatch(ctx, query, mode, cfg)
	switch out.status {
	case dispatchOK:
		r.stats.recordPerformance(string(mode), time.Since(start), len(out.results))
		return out.results, nil

	case dispatchRecoverable:
		r.stats.recordError("error:" + string(mode))
		r.logger.Warn("strategy_failed_falling_back", "mode", string(mode), "error", out.err)

		fallbackStart := time.Now()
		results, err := r.retriever.SearchSimilar(ctx, query, cfg.TopK, cfg.SimilarityThreshold)
		if err != nil {
			r.stats.recordError("fallback_failed")
			r.logger.Error("semantic_fallback_failed", "mode", string(mode), "error", err)
			return nil, domain.WrapError(domain.ErrProcessing, "search fallback",
				fmt.Errorf("%s strategy failed (%w), semantic fallback failed: %w", mode, out.err, err))
		}
		r.stats.recordPerformance(fallbackBucket, time.Since(fallbackStart), len(results))
		return results, nil

	default:
		r.logger.Error("semantic_search_failed", "error", out.err)
		return nil, domain.WrapError(domain.ErrProcessing, "semantic search", out.err)
	}
}

func (r *SearchStrategyRouter) dispatch(ctx context.Context, query string, mode domain.SearchMode, cfg domain.RetrievalConfig) dispatchOutcome {
	switch mode {
	case domain.SearchModeKeyword:
		keywords := ExtractKeywords(query)
		if len(keywords) == 0 {
			// Expected for very short or stop-word-only queries;
			// not an error, go straight to semantic.
			r.logger.Info("no_keywords_extracted", "query_len", len(query))
			return r.semantic(ctx, query, cfg)
		}
		results, err := r.retriever.SearchByKeywords(ctx, keywords, cfg.TopK)
		if err != nil {
			return dispatchOutcome{status: dispatchRecoverable, err: err}
		}
		return dispatchOutcome{status: dispatchOK, results: filterByThreshold(results, cfg.SimilarityThreshold)}

	case domain.SearchModeHybrid:
		results, err := r.retriever.SearchHybrid(ctx, query, cfg.TopK, hybridSemanticWeight, hybridKeywordWeight)
		if err != nil {
			return dispatchOutcome{status: dispatchRecoverable, err: err}
		}
		return dispatchOutcome{status: dispatchOK, results: filterByThreshold(results, cfg.SimilarityThreshold)}

	default:
		return r.semantic(ctx, query, cfg)
	}
}

func (r *SearchStrategyRouter) semantic(ctx context.Context, query string, cfg domain.RetrievalConfig) dispatchOutcome {
	results, err := r.retriever.SearchSimilar(ctx, query, cfg.TopK, cfg.SimilarityThreshold)
	if err != nil {
		return dispatchOutcome{status: dispatchFatal, err: err}
	}
	return dispatchOutcome{status: dispatchOK, results: results}
}

// filterByThreshold applies the similarity floor locally. The semantic
// collaborator thresholds on its own; keyword and hybrid results may not.
func filterByThreshold(results []domain.ScoredResult, threshold float64) []domain.ScoredResult {
	if threshold <= 0 {
		return results
	}
	filtered := make([]domain.ScoredResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// UsageStatistics returns a copy of the aggregate counters.
func (r *SearchStrategyRouter) UsageStatistics() map[string]any {
	return r.stats.snapshot()
}

func (r *SearchStrategyRouter) ResetStatistics() {
	r.stats.reset()
}

// HealthCheck reports router readiness plus the aggregate error rate.
func (r *SearchStrategyRouter) HealthCheck() map[string]any {
	total, errorRate := r.stats.errorRate()
	health := map[string]any{
		"status":         "healthy",
		"total_requests": total,
		"error_rate":     errorRate,
	}
	if r.retriever == nil {
		health["status"] = "unhealthy"
		health["message"] = "base retriever is not configured"
	}
	return health
}

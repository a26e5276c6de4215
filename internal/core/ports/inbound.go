package ports

import (
	"context"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

// RetrievalService is the inbound contract for ranked-chunk retrieval.
// A nil config uses the service's configured default.
type RetrievalService interface {
	Search(ctx context.Context, query string, cfg *domain.RetrievalConfig) ([]domain.ScoredResult, error)
	DefaultConfig() domain.RetrievalConfig
	UpdateDefaultConfig(cfg domain.RetrievalConfig) error
	Statistics(ctx context.Context) map[string]any
	ResetStatistics()
	ClearCache(ctx context.Context, pattern string) int
	WarmUpCache(ctx context.Context, entries []domain.WarmUpEntry) int
	CacheInfo(ctx context.Context) map[string]any
	HealthCheck(ctx context.Context) map[string]any
}

// QuestionAnswerer is the inbound contract for the QA flow.
type QuestionAnswerer interface {
	Ask(ctx context.Context, sessionID, question string, cfg *domain.RetrievalConfig) (*domain.Answer, error)
}

// SessionReader is the inbound read model for conversation history.
type SessionReader interface {
	History(ctx context.Context, sessionID string, limit int) ([]domain.QAPair, error)
}

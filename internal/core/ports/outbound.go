package ports

import (
	"context"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

// BaseRetriever executes one retrieval strategy against the vector store.
// Implementations may fail with an error but must never return a nil slice
// as the "no results" signal; an empty slice means no results.
type BaseRetriever interface {
	SearchSimilar(ctx context.Context, query string, topK int, similarityThreshold float64) ([]domain.ScoredResult, error)
	SearchByKeywords(ctx context.Context, keywords []string, topK int) ([]domain.ScoredResult, error)
	SearchHybrid(ctx context.Context, query string, topK int, semanticWeight, keywordWeight float64) ([]domain.ScoredResult, error)
}

// Reranker reorders an already-retrieved candidate set. A failure means "no
// reranking available for this request"; callers keep the original order.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []domain.ScoredResult, cfg domain.RetrievalConfig) ([]domain.ScoredResult, error)
	Healthy(ctx context.Context) bool
}

// CacheStore is the raw key-value backend under the retrieval cache.
// Any call may fail; the caller converts failures into cache misses.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys []string) (int, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, sources []domain.ScoredResult) (string, error)
}

// SessionStore persists multi-turn QA history.
type SessionStore interface {
	EnsureSession(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendQAPair(ctx context.Context, pair domain.QAPair) error
	ListRecentQAPairs(ctx context.Context, sessionID string, limit int) ([]domain.QAPair, error)
}

// MessageQueue carries document-change events that invalidate cached retrievals.
type MessageQueue interface {
	PublishDocumentsUpdated(ctx context.Context, documentID string) error
	SubscribeDocumentsUpdated(ctx context.Context, handler func(context.Context, string) error) error
}

package domain

import (
	"fmt"
	"math"
	"strings"
)

// SearchMode selects the retrieval strategy for a single request.
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeKeyword  SearchMode = "keyword"
	SearchModeHybrid   SearchMode = "hybrid"
)

func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeSemantic, SearchModeKeyword, SearchModeHybrid:
		return true
	default:
		return false
	}
}

// RetrievalConfig is the per-request retrieval policy. Two configs with
// identical field values are equivalent for cache-key purposes.
type RetrievalConfig struct {
	TopK                int        `json:"top_k" yaml:"top_k"`
	SimilarityThreshold float64    `json:"similarity_threshold" yaml:"similarity_threshold"`
	SearchMode          SearchMode `json:"search_mode" yaml:"search_mode"`
	EnableRerank        bool       `json:"enable_rerank" yaml:"enable_rerank"`
	EnableCache         bool       `json:"enable_cache" yaml:"enable_cache"`
}

func (c RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %g", c.SimilarityThreshold)
	}
	if !c.SearchMode.Valid() {
		return fmt.Errorf("unknown search_mode %q", c.SearchMode)
	}
	return nil
}

// DefaultRetrievalConfig is the policy applied when a request carries
// no overrides.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0.7,
		SearchMode:          SearchModeSemantic,
		EnableRerank:        false,
		EnableCache:         true,
	}
}

// WarmUpEntry is one query/config pair for cache pre-population.
type WarmUpEntry struct {
	Query  string          `json:"query"`
	Config RetrievalConfig `json:"config"`
}

// ScoredResult is one retrieved chunk plus its relevance score.
type ScoredResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Score      float64        `json:"similarity_score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewScoredResult builds a result with the score rounded to four decimals.
func NewScoredResult(chunkID, documentID, content string, score float64, metadata map[string]any) (ScoredResult, error) {
	if strings.TrimSpace(content) == "" {
		return ScoredResult{}, fmt.Errorf("result content is empty")
	}
	return ScoredResult{
		ChunkID:    chunkID,
		DocumentID: documentID,
		Content:    content,
		Score:      RoundScore(score),
		Metadata:   metadata,
	}, nil
}

// RoundScore rounds a similarity score to four decimal places.
func RoundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

// WithMetadata returns a copy of the result with one metadata key set.
// The original metadata map is never mutated.
func (r ScoredResult) WithMetadata(key string, value any) ScoredResult {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	out := r
	out.Metadata = meta
	return out
}

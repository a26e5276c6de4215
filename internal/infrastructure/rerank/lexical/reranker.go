// Package lexical reranks retrieved candidates with a token-overlap model.
// It needs no external service, so it stays available when the LLM stack
// is degraded.
package lexical

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

const (
	retrievalWeight = 0.60
	overlapWeight   = 0.30
	coverageWeight  = 0.10
)

type Reranker struct{}

func New() *Reranker {
	return &Reranker{}
}

// Rerank blends the normalized retrieval score with query-token overlap.
// The original retrieval score survives in metadata as original_score.
func (r *Reranker) Rerank(ctx context.Context, query string, results []domain.ScoredResult, cfg domain.RetrievalConfig) ([]domain.ScoredResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(results) == 0 {
		return results, nil
	}

	queryTokens := toTokenSet(query)

	minScore := results[0].Score
	maxScore := results[0].Score
	for _, res := range results[1:] {
		if res.Score < minScore {
			minScore = res.Score
		}
		if res.Score > maxScore {
			maxScore = res.Score
		}
	}

	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	out := make([]domain.ScoredResult, len(results))
	for i, res := range results {
		contentTokens := toTokenSet(res.Content)
		overlap := tokenOverlap(queryTokens, contentTokens)
		coverage := tokenCoverage(queryTokens, res.Content)
		blended := retrievalWeight*normalize(res.Score) + overlapWeight*overlap + coverageWeight*coverage

		reranked := res.WithMetadata("original_score", res.Score)
		reranked = reranked.WithMetadata("rerank_score", domain.RoundScore(blended))
		reranked.Score = domain.RoundScore(blended)
		out[i] = reranked
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, nil
}

func (r *Reranker) Healthy(ctx context.Context) bool {
	return ctx.Err() == nil
}

func tokenOverlap(query, content map[string]struct{}) float64 {
	if len(query) == 0 || len(content) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := content[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// tokenCoverage rewards content that contains query tokens as substrings,
// which catches CJK queries where word boundaries are absent.
func tokenCoverage(query map[string]struct{}, content string) float64 {
	if len(query) == 0 || content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	for token := range query {
		if token == "" {
			continue
		}
		if strings.Contains(lower, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
)

// Retriever implements semantic, keyword, and hybrid search against a
// Qdrant collection over its HTTP API.
type Retriever struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
}

func New(baseURL, collection string, embedder ports.Embedder) *Retriever {
	return &Retriever{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		embedder:   embedder,
	}
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// SearchSimilar embeds the query and runs a vector search. Qdrant applies
// the score threshold server-side.
func (r *Retriever) SearchSimilar(ctx context.Context, query string, topK int, similarityThreshold float64) ([]domain.ScoredResult, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if similarityThreshold > 0 {
		reqBody["score_threshold"] = similarityThreshold
	}

	var searchResp struct {
		Result []searchHit `json:"result"`
	}
	if err := r.post(ctx, "/points/search", reqBody, &searchResp); err != nil {
		return nil, err
	}
	return hitsToResults(searchResp.Result), nil
}

// SearchByKeywords scrolls points whose text payload matches any keyword
// and scores them by the fraction of keywords they contain.
func (r *Retriever) SearchByKeywords(ctx context.Context, keywords []string, topK int) ([]domain.ScoredResult, error) {
	if len(keywords) == 0 {
		return []domain.ScoredResult{}, nil
	}

	should := make([]map[string]any, 0, len(keywords))
	for _, kw := range keywords {
		should = append(should, map[string]any{
			"key":   "text",
			"match": map[string]any{"text": kw},
		})
	}
	reqBody := map[string]any{
		"filter":       map[string]any{"should": should},
		"limit":        topK * 3,
		"with_payload": true,
	}

	var scrollResp struct {
		Result struct {
			Points []searchHit `json:"points"`
		} `json:"result"`
	}
	if err := r.post(ctx, "/points/scroll", reqBody, &scrollResp); err != nil {
		return nil, err
	}

	results := make([]domain.ScoredResult, 0, len(scrollResp.Result.Points))
	for _, hit := range scrollResp.Result.Points {
		text := stringPayload(hit.Payload, "text")
		result, err := domain.NewScoredResult(
			fmt.Sprintf("%v", hit.ID),
			stringPayload(hit.Payload, "doc_id"),
			text,
			keywordScore(keywords, text),
			payloadMetadata(hit.Payload),
		)
		if err != nil {
			continue
		}
		results = append(results, result)
	}
	sortByScore(results)
	return trim(results, topK), nil
}

// SearchHybrid blends the semantic and keyword legs with the supplied
// weights, deduplicating by chunk id. A keyword-leg failure degrades to
// semantic-only; a semantic-leg failure fails the call.
func (r *Retriever) SearchHybrid(ctx context.Context, query string, topK int, semanticWeight, keywordWeight float64) ([]domain.ScoredResult, error) {
	semantic, err := r.SearchSimilar(ctx, query, topK, 0)
	if err != nil {
		return nil, fmt.Errorf("hybrid semantic leg: %w", err)
	}

	keyword, err := r.SearchByKeywords(ctx, queryTerms(query), topK)
	if err != nil {
		keyword = nil
	}

	type blended struct {
		result domain.ScoredResult
		score  float64
	}
	acc := make(map[string]blended, len(semantic)+len(keyword))
	for _, res := range semantic {
		acc[res.ChunkID] = blended{result: res, score: semanticWeight * res.Score}
	}
	for _, res := range keyword {
		entry, ok := acc[res.ChunkID]
		if !ok {
			entry = blended{result: res}
		}
		entry.score += keywordWeight * res.Score
		acc[res.ChunkID] = entry
	}

	results := make([]domain.ScoredResult, 0, len(acc))
	for _, entry := range acc {
		res := entry.result
		res.Score = domain.RoundScore(entry.score)
		results = append(results, res)
	}
	sortByScore(results)
	return trim(results, topK), nil
}

func (r *Retriever) post(ctx context.Context, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s%s", r.baseURL, r.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

func hitsToResults(hits []searchHit) []domain.ScoredResult {
	results := make([]domain.ScoredResult, 0, len(hits))
	for _, hit := range hits {
		result, err := domain.NewScoredResult(
			fmt.Sprintf("%v", hit.ID),
			stringPayload(hit.Payload, "doc_id"),
			stringPayload(hit.Payload, "text"),
			hit.Score,
			payloadMetadata(hit.Payload),
		)
		if err != nil {
			continue
		}
		results = append(results, result)
	}
	return results
}

// keywordScore is the fraction of keywords present in the text. The
// keyword leg has no server-side relevance score to reuse.
func keywordScore(keywords []string, text string) float64 {
	if len(keywords) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

func sortByScore(results []domain.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func trim(results []domain.ScoredResult, limit int) []domain.ScoredResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadMetadata(payload map[string]any) map[string]any {
	meta := make(map[string]any)
	for k, v := range payload {
		if k == "text" || k == "doc_id" {
			continue
		}
		meta[k] = v
	}
	return meta
}

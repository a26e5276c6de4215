package usecase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

// cacheEnvelope is the persisted cache record. Results are kept as raw
// messages so one malformed record can be skipped without losing the rest.
type cacheEnvelope struct {
	Results  []json.RawMessage `json:"results"`
	CachedAt time.Time         `json:"cached_at"`
	Count    int               `json:"count"`
}

func encodeResults(results []domain.ScoredResult) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(results))
	for i, r := range results {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal result %d: %w", i, err)
		}
		raw = append(raw, b)
	}
	envelope := cacheEnvelope{
		Results:  raw,
		CachedAt: time.Now().UTC(),
		Count:    len(raw),
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal cache envelope: %w", err)
	}
	return b, nil
}

// decodeResults unmarshals a cache record, dropping records that fail to
// parse. It returns the number of dropped records alongside the survivors.
func decodeResults(data []byte) ([]domain.ScoredResult, int, error) {
	var envelope cacheEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, 0, fmt.Errorf("unmarshal cache envelope: %w", err)
	}

	results := make([]domain.ScoredResult, 0, len(envelope.Results))
	dropped := 0
	for _, raw := range envelope.Results {
		var r domain.ScoredResult
		if err := json.Unmarshal(raw, &r); err != nil {
			dropped++
			continue
		}
		results = append(results, r)
	}
	return results, dropped, nil
}

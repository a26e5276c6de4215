package usecase

import (
	"sync"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

// perfBucket aggregates latency and result-count samples for one
// performance bucket (a mode name or "semantic_fallback").
type perfBucket struct {
	count        int64
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	totalResults int64
}

func (b *perfBucket) record(latency time.Duration, resultCount int) {
	if b.count == 0 || latency < b.minLatency {
		b.minLatency = latency
	}
	if latency > b.maxLatency {
		b.maxLatency = latency
	}
	b.count++
	b.totalLatency += latency
	b.totalResults += int64(resultCount)
}

func (b *perfBucket) snapshot() map[string]any {
	out := map[string]any{
		"count":            b.count,
		"avg_latency_ms":   0.0,
		"min_latency_ms":   durationMillis(b.minLatency),
		"max_latency_ms":   durationMillis(b.maxLatency),
		"avg_result_count": 0.0,
	}
	if b.count > 0 {
		out["avg_latency_ms"] = durationMillis(b.totalLatency) / float64(b.count)
		out["avg_result_count"] = float64(b.totalResults) / float64(b.count)
	}
	return out
}

// routerStatistics is the router's process-lifetime counter set. One mutex
// guards everything so reset is atomic from the caller's perspective.
type routerStatistics struct {
	mu            sync.Mutex
	totalRequests int64
	modeUsage     map[domain.SearchMode]int64
	performance   map[string]*perfBucket
	errorTags     map[string]int64
}

func newRouterStatistics() *routerStatistics {
	return &routerStatistics{
		modeUsage:   make(map[domain.SearchMode]int64),
		performance: make(map[string]*perfBucket),
		errorTags:   make(map[string]int64),
	}
}

func (s *routerStatistics) recordRequest(mode domain.SearchMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	s.modeUsage[mode]++
}

func (s *routerStatistics) recordError(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorTags[tag]++
}

func (s *routerStatistics) recordPerformance(bucket string, latency time.Duration, resultCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.performance[bucket]
	if !ok {
		b = &perfBucket{}
		s.performance[bucket] = b
	}
	b.record(latency, resultCount)
}

func (s *routerStatistics) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests = 0
	s.modeUsage = make(map[domain.SearchMode]int64)
	s.performance = make(map[string]*perfBucket)
	s.errorTags = make(map[string]int64)
}

// snapshot returns plain nested maps with no references to live state.
func (s *routerStatistics) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := make(map[string]int64, len(s.modeUsage))
	percentages := make(map[string]float64, len(s.modeUsage))
	for mode, count := range s.modeUsage {
		usage[string(mode)] = count
		if s.totalRequests > 0 {
			percentages[string(mode)] = float64(count) / float64(s.totalRequests) * 100
		} else {
			percentages[string(mode)] = 0
		}
	}

	performance := make(map[string]any, len(s.performance))
	for bucket, b := range s.performance {
		performance[bucket] = b.snapshot()
	}

	errorTags := make(map[string]int64, len(s.errorTags))
	for tag, count := range s.errorTags {
		errorTags[tag] = count
	}

	return map[string]any{
		"total_requests":   s.totalRequests,
		"mode_usage":       usage,
		"mode_percentages": percentages,
		"performance":      performance,
		"errors":           errorTags,
	}
}

func (s *routerStatistics) errorRate() (int64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errorCount int64
	for _, count := range s.errorTags {
		errorCount += count
	}
	if s.totalRequests == 0 {
		return 0, 0
	}
	return s.totalRequests, float64(errorCount) / float64(s.totalRequests)
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

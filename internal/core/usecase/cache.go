package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
)

const cacheKeyPrefix = "retrieval:"

// CacheConfig is resolved once at construction.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// CacheStatistics holds process-lifetime cache counters. Counters are
// approximate monitoring data, incremented atomically without a lock.
type CacheStatistics struct {
	totalRequests atomic.Int64
	hits          atomic.Int64
	misses        atomic.Int64
	errors        atomic.Int64
}

// CacheStatisticsSnapshot is a point-in-time copy with derived rates.
type CacheStatisticsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Errors        int64   `json:"errors"`
	HitRate       float64 `json:"hit_rate"`
	MissRate      float64 `json:"miss_rate"`
	ErrorRate     float64 `json:"error_rate"`
}

func (s *CacheStatistics) Snapshot() CacheStatisticsSnapshot {
	total := s.totalRequests.Load()
	snap := CacheStatisticsSnapshot{
		TotalRequests: total,
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Errors:        s.errors.Load(),
	}
	if total > 0 {
		snap.HitRate = float64(snap.Hits) / float64(total)
		snap.MissRate = float64(snap.Misses) / float64(total)
		snap.ErrorRate = float64(snap.Errors) / float64(total)
	}
	return snap
}

func (s *CacheStatistics) Reset() {
	s.totalRequests.Store(0)
	s.hits.Store(0)
	s.misses.Store(0)
	s.errors.Store(0)
}

// FetchFunc computes fresh results for a cache warm-up entry.
type FetchFunc func(ctx context.Context, query string, cfg domain.RetrievalConfig) ([]domain.ScoredResult, error)

// ResultCache maps (query, config, extra params) to previously computed
// result lists. The backing store is treated as unreliable: every failure
// is logged, counted, and converted into cache-miss behavior.
type ResultCache struct {
	store  ports.CacheStore
	cfg    CacheConfig
	logger *slog.Logger
	stats  CacheStatistics
}

func NewResultCache(store ports.CacheStore, cfg CacheConfig, logger *slog.Logger) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if store == nil {
		cfg.Enabled = false
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *ResultCache) Enabled() bool {
	return c.cfg.Enabled
}

// Get returns the cached result list for the request, if present. The
// second return value distinguishes an empty cached list from a miss.
func (c *ResultCache) Get(ctx context.Context, query string, cfg domain.RetrievalConfig, extra map[string]any) ([]domain.ScoredResult, bool) {
	if !c.cfg.Enabled || !cfg.EnableCache {
		return nil, false
	}
	c.stats.totalRequests.Add(1)

	key := c.Key(query, cfg, extra)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache_get_failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		c.stats.misses.Add(1)
		return nil, false
	}

	results, dropped, err := decodeResults(data)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache_decode_failed", "key", key, "error", err)
		return nil, false
	}
	if dropped > 0 {
		c.logger.Warn("cache_records_dropped", "key", key, "dropped", dropped)
	}
	c.stats.hits.Add(1)
	return results, true
}

// Put stores a non-empty result list under the derived key. Empty result
// sets are never cached so a transient failure cannot masquerade as a
// valid empty answer. Write failures are swallowed.
func (c *ResultCache) Put(ctx context.Context, query string, cfg domain.RetrievalConfig, results []domain.ScoredResult, extra map[string]any) {
	if !c.cfg.Enabled || !cfg.EnableCache || len(results) == 0 {
		return
	}
	c.stats.totalRequests.Add(1)

	key := c.Key(query, cfg, extra)
	data, err := encodeResults(results)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache_encode_failed", "key", key, "error", err)
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.cfg.TTL); err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache_put_failed", "key", key, "error", err)
	}
}

// Key derives the deterministic, content-addressed lookup key. Extra
// params are sorted by name so their call-site order never matters.
func (c *ResultCache) Key(query string, cfg domain.RetrievalConfig, extra map[string]any) string {
	var b strings.Builder
	b.WriteString("query=")
	b.WriteString(query)
	b.WriteString("|mode=")
	b.WriteString(string(cfg.SearchMode))
	b.WriteString("|top_k=")
	b.WriteString(strconv.Itoa(cfg.TopK))
	b.WriteString("|threshold=")
	b.WriteString(strconv.FormatFloat(cfg.SimilarityThreshold, 'g', -1, 64))
	b.WriteString("|rerank=")
	b.WriteString(strconv.FormatBool(cfg.EnableRerank))

	if len(extra) > 0 {
		names := make([]string, 0, len(extra))
		for name := range extra {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString("|")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(fmt.Sprintf("%v", extra[name]))
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Clear removes entries matching the pattern (default: whole namespace)
// and returns the number removed. Backend failures yield zero.
func (c *ResultCache) Clear(ctx context.Context, pattern string) int {
	if c.store == nil {
		return 0
	}
	if pattern == "" {
		pattern = cacheKeyPrefix + "*"
	}
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		c.logger.Warn("cache_clear_list_failed", "pattern", pattern, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	removed, err := c.store.DeleteMany(ctx, keys)
	if err != nil {
		c.logger.Warn("cache_clear_delete_failed", "pattern", pattern, "error", err)
		return 0
	}
	c.logger.Info("cache_cleared", "pattern", pattern, "removed", removed)
	return removed
}

// Info reports configuration, raw counters, and derived rates.
func (c *ResultCache) Info(ctx context.Context) map[string]any {
	snap := c.stats.Snapshot()
	connected := false
	if c.store != nil {
		connected = c.store.Ping(ctx) == nil
	}
	return map[string]any{
		"enabled":        c.cfg.Enabled,
		"connected":      connected,
		"ttl_seconds":    int64(c.cfg.TTL / time.Second),
		"total_requests": snap.TotalRequests,
		"hits":           snap.Hits,
		"misses":         snap.Misses,
		"errors":         snap.Errors,
		"hit_rate":       snap.HitRate,
		"miss_rate":      snap.MissRate,
		"error_rate":     snap.ErrorRate,
	}
}

// WarmUp populates entries that are not already cached, computing results
// through fetch. Individual failures never abort the batch.
func (c *ResultCache) WarmUp(ctx context.Context, entries []domain.WarmUpEntry, fetch FetchFunc) int {
	if !c.cfg.Enabled || fetch == nil {
		return 0
	}
	warmed := 0
	for _, entry := range entries {
		if entry.Config.Validate() != nil || !entry.Config.EnableCache {
			continue
		}
		if _, ok := c.Get(ctx, entry.Query, entry.Config, nil); ok {
			continue
		}
		results, err := fetch(ctx, entry.Query, entry.Config)
		if err != nil {
			c.logger.Warn("cache_warmup_fetch_failed", "query", entry.Query, "error", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		c.Put(ctx, entry.Query, entry.Config, results, nil)
		warmed++
	}
	return warmed
}

func (c *ResultCache) Statistics() CacheStatisticsSnapshot {
	return c.stats.Snapshot()
}

func (c *ResultCache) ResetStatistics() {
	c.stats.Reset()
}

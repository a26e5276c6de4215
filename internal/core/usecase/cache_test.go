package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

type cacheStoreFake struct {
	data      map[string][]byte
	getErr    error
	setErr    error
	keysErr   error
	delErr    error
	pingErr   error
	getCalls  int
	setCalls  int
	lastTTL   time.Duration
	deletions int
}

func newCacheStoreFake() *cacheStoreFake {
	return &cacheStoreFake{data: map[string][]byte{}}
}

func (f *cacheStoreFake) Get(_ context.Context, key string) ([]byte, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f *cacheStoreFake) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	f.lastTTL = ttl
	return nil
}

func (f *cacheStoreFake) DeleteMany(_ context.Context, keys []string) (int, error) {
	if f.delErr != nil {
		return 0, f.delErr
	}
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	f.deletions += n
	return n, nil
}

func (f *cacheStoreFake) Keys(_ context.Context, _ string) ([]string, error) {
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *cacheStoreFake) Ping(_ context.Context) error { return f.pingErr }

func testConfig() domain.RetrievalConfig {
	return domain.RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0.7,
		SearchMode:          domain.SearchModeSemantic,
		EnableRerank:        false,
		EnableCache:         true,
	}
}

func testResults() []domain.ScoredResult {
	return []domain.ScoredResult{
		{ChunkID: "c1", DocumentID: "d1", Content: "first chunk", Score: 0.9123, Metadata: map[string]any{"page": "1"}},
		{ChunkID: "c2", DocumentID: "d1", Content: "second chunk", Score: 0.8456},
	}
}

func TestResultCacheKeyDeterminism(t *testing.T) {
	cache := NewResultCache(newCacheStoreFake(), CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	cfg := testConfig()

	k1 := cache.Key("什么是人工智能？", cfg, nil)
	k2 := cache.Key("什么是人工智能？", cfg, nil)
	if k1 != k2 {
		t.Fatalf("identical inputs produced different keys: %s vs %s", k1, k2)
	}

	variants := []domain.RetrievalConfig{cfg, cfg, cfg, cfg}
	variants[0].TopK = 10
	variants[1].SimilarityThreshold = 0.5
	variants[2].SearchMode = domain.SearchModeHybrid
	variants[3].EnableRerank = true
	for i, v := range variants {
		if cache.Key("什么是人工智能？", v, nil) == k1 {
			t.Fatalf("variant %d produced the same key", i)
		}
	}
	if cache.Key("another query", cfg, nil) == k1 {
		t.Fatalf("different query produced the same key")
	}
}

func TestResultCacheKeyExtraParamsOrderIndependent(t *testing.T) {
	cache := NewResultCache(newCacheStoreFake(), CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	cfg := testConfig()

	k1 := cache.Key("q", cfg, map[string]any{"user": "alice", "lang": "zh"})
	k2 := cache.Key("q", cfg, map[string]any{"lang": "zh", "user": "alice"})
	if k1 != k2 {
		t.Fatalf("extra param order changed the key")
	}
	k3 := cache.Key("q", cfg, map[string]any{"lang": "en", "user": "alice"})
	if k3 == k1 {
		t.Fatalf("changed extra param value kept the same key")
	}
}

func TestResultCacheMissThenHit(t *testing.T) {
	store := newCacheStoreFake()
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	cfg := testConfig()
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "q", cfg, nil); ok {
		t.Fatalf("expected miss on empty cache")
	}

	results := testResults()
	cache.Put(ctx, "q", cfg, results, nil)
	if store.lastTTL != time.Minute {
		t.Fatalf("expected TTL %v, got %v", time.Minute, store.lastTTL)
	}

	got, ok := cache.Get(ctx, "q", cfg, nil)
	if !ok {
		t.Fatalf("expected hit after put")
	}
	if len(got) != len(results) {
		t.Fatalf("expected %d results, got %d", len(results), len(got))
	}
	for i := range results {
		if got[i].ChunkID != results[i].ChunkID ||
			got[i].DocumentID != results[i].DocumentID ||
			got[i].Content != results[i].Content ||
			got[i].Score != results[i].Score {
			t.Fatalf("result %d does not round-trip: %+v vs %+v", i, got[i], results[i])
		}
	}
	if got[0].Metadata["page"] != "1" {
		t.Fatalf("metadata did not round-trip: %v", got[0].Metadata)
	}

	snap := cache.Statistics()
	if snap.Hits != 1 || snap.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", snap)
	}
}

func TestResultCacheEmptyResultsNotCached(t *testing.T) {
	store := newCacheStoreFake()
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	ctx := context.Background()

	cache.Put(ctx, "q", testConfig(), nil, nil)
	cache.Put(ctx, "q", testConfig(), []domain.ScoredResult{}, nil)
	if store.setCalls != 0 {
		t.Fatalf("empty result set must not be written, got %d writes", store.setCalls)
	}
	if _, ok := cache.Get(ctx, "q", testConfig(), nil); ok {
		t.Fatalf("expected miss after empty put")
	}
}

func TestResultCacheDisabledSkipsCounters(t *testing.T) {
	store := newCacheStoreFake()
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	cfg := testConfig()
	cfg.EnableCache = false

	if _, ok := cache.Get(context.Background(), "q", cfg, nil); ok {
		t.Fatalf("expected miss when config disables caching")
	}
	if store.getCalls != 0 {
		t.Fatalf("backend must not be touched when caching is disabled")
	}
	if snap := cache.Statistics(); snap.TotalRequests != 0 {
		t.Fatalf("request counter must not move when caching is disabled, got %d", snap.TotalRequests)
	}
}

func TestResultCacheBackendErrorDegradesToMiss(t *testing.T) {
	store := newCacheStoreFake()
	store.getErr = errors.New("connection refused")
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)

	if _, ok := cache.Get(context.Background(), "q", testConfig(), nil); ok {
		t.Fatalf("backend error must look like a miss")
	}
	snap := cache.Statistics()
	if snap.Errors != 1 || snap.TotalRequests != 1 {
		t.Fatalf("expected 1 error in 1 request, got %+v", snap)
	}
}

func TestResultCachePutFailureSwallowed(t *testing.T) {
	store := newCacheStoreFake()
	store.setErr = errors.New("read-only replica")
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)

	cache.Put(context.Background(), "q", testConfig(), testResults(), nil)
	if snap := cache.Statistics(); snap.Errors != 1 {
		t.Fatalf("expected write failure counted, got %+v", snap)
	}
}

func TestResultCacheRateInvariants(t *testing.T) {
	store := newCacheStoreFake()
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	ctx := context.Background()

	empty := cache.Statistics()
	if empty.HitRate != 0 || empty.MissRate != 0 || empty.ErrorRate != 0 {
		t.Fatalf("all rates must be exactly 0.0 with no requests, got %+v", empty)
	}

	cache.Get(ctx, "q1", testConfig(), nil)
	cache.Put(ctx, "q1", testConfig(), testResults(), nil)
	cache.Get(ctx, "q1", testConfig(), nil)
	store.getErr = errors.New("timeout")
	cache.Get(ctx, "q2", testConfig(), nil)

	snap := cache.Statistics()
	if snap.Hits+snap.Misses > snap.TotalRequests {
		t.Fatalf("hits+misses exceeded total requests: %+v", snap)
	}
	for name, rate := range map[string]float64{"hit": snap.HitRate, "miss": snap.MissRate, "error": snap.ErrorRate} {
		if rate < 0 || rate > 1 {
			t.Fatalf("%s rate out of [0,1]: %g", name, rate)
		}
	}
}

func TestResultCacheClear(t *testing.T) {
	store := newCacheStoreFake()
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	ctx := context.Background()

	cache.Put(ctx, "q1", testConfig(), testResults(), nil)
	cache.Put(ctx, "q2", testConfig(), testResults(), nil)

	if removed := cache.Clear(ctx, ""); removed != 2 {
		t.Fatalf("expected 2 entries cleared, got %d", removed)
	}
	if removed := cache.Clear(ctx, ""); removed != 0 {
		t.Fatalf("clearing an empty cache must return 0, got %d", removed)
	}

	store.keysErr = errors.New("down")
	if removed := cache.Clear(ctx, ""); removed != 0 {
		t.Fatalf("backend failure must return 0, got %d", removed)
	}
}

func TestResultCacheInfoRates(t *testing.T) {
	cache := NewResultCache(newCacheStoreFake(), CacheConfig{Enabled: true, TTL: 30 * time.Minute}, nil)
	info := cache.Info(context.Background())

	if info["enabled"] != true {
		t.Fatalf("expected enabled=true, got %v", info["enabled"])
	}
	if info["ttl_seconds"] != int64(1800) {
		t.Fatalf("expected ttl_seconds=1800, got %v", info["ttl_seconds"])
	}
	if info["hit_rate"] != 0.0 || info["miss_rate"] != 0.0 || info["error_rate"] != 0.0 {
		t.Fatalf("zero-request rates must be 0.0, got %v", info)
	}
}

func TestResultCacheWarmUp(t *testing.T) {
	store := newCacheStoreFake()
	cache := NewResultCache(store, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	ctx := context.Background()

	cache.Put(ctx, "cached", testConfig(), testResults(), nil)

	entries := []domain.WarmUpEntry{
		{Query: "cached", Config: testConfig()},
		{Query: "fresh", Config: testConfig()},
		{Query: "failing", Config: testConfig()},
		{Query: "empty", Config: testConfig()},
	}
	fetched := map[string]int{}
	warmed := cache.WarmUp(ctx, entries, func(_ context.Context, query string, _ domain.RetrievalConfig) ([]domain.ScoredResult, error) {
		fetched[query]++
		switch query {
		case "failing":
			return nil, errors.New("retriever down")
		case "empty":
			return nil, nil
		default:
			return testResults(), nil
		}
	})

	if warmed != 1 {
		t.Fatalf("expected exactly the fresh entry warmed, got %d", warmed)
	}
	if fetched["cached"] != 0 {
		t.Fatalf("already-cached entry must not be fetched")
	}
	if _, ok := cache.Get(ctx, "fresh", testConfig(), nil); !ok {
		t.Fatalf("warmed entry must be a hit afterwards")
	}
}

func TestResultCacheNilStoreDisabled(t *testing.T) {
	cache := NewResultCache(nil, CacheConfig{Enabled: true, TTL: time.Minute}, nil)
	if cache.Enabled() {
		t.Fatalf("cache with no store must report disabled")
	}
	if _, ok := cache.Get(context.Background(), "q", testConfig(), nil); ok {
		t.Fatalf("cache with no store must miss")
	}
}

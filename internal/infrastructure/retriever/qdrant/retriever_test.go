package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type embedderFake struct {
	vector []float32
	err    error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func TestSearchSimilarMapsHitsToResults(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.91,"payload":{"text":"alpha chunk","doc_id":"doc-1","chunk_index":0}},
			{"id":"p2","score":0.82,"payload":{"text":"beta chunk","doc_id":"doc-2"}}
		]}`))
	}))
	defer server.Close()

	retriever := New(server.URL, "chunks", &embedderFake{vector: []float32{0.1, 0.2}})
	results, err := retriever.SearchSimilar(context.Background(), "alpha", 5, 0.7)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "p1" || results[0].DocumentID != "doc-1" || results[0].Content != "alpha chunk" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[0].Score != 0.91 {
		t.Fatalf("unexpected score %g", results[0].Score)
	}
	if _, ok := results[0].Metadata["chunk_index"]; !ok {
		t.Fatalf("expected payload extras in metadata, got %v", results[0].Metadata)
	}
	if capturedBody["score_threshold"] != 0.7 {
		t.Fatalf("expected score_threshold forwarded, got %v", capturedBody["score_threshold"])
	}
}

func TestSearchSimilarFailsWhenEmbeddingFails(t *testing.T) {
	retriever := New("http://unused", "chunks", &embedderFake{err: context.DeadlineExceeded})
	if _, err := retriever.SearchSimilar(context.Background(), "q", 5, 0); err == nil {
		t.Fatalf("expected error when embedding fails")
	}
}

func TestSearchByKeywordsScoresByCoverage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/scroll" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"p1","payload":{"text":"machine learning basics","doc_id":"doc-1"}},
			{"id":"p2","payload":{"text":"machine tooling","doc_id":"doc-2"}}
		]}}`))
	}))
	defer server.Close()

	retriever := New(server.URL, "chunks", &embedderFake{})
	results, err := retriever.SearchByKeywords(context.Background(), []string{"machine", "learning"}, 5)
	if err != nil {
		t.Fatalf("SearchByKeywords() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "p1" {
		t.Fatalf("expected full-coverage chunk first, got %s", results[0].ChunkID)
	}
	if results[0].Score != 1 || results[1].Score != 0.5 {
		t.Fatalf("unexpected coverage scores %g, %g", results[0].Score, results[1].Score)
	}
}

func TestSearchByKeywordsEmptyInput(t *testing.T) {
	retriever := New("http://unused", "chunks", &embedderFake{})
	results, err := retriever.SearchByKeywords(context.Background(), nil, 5)
	if err != nil {
		t.Fatalf("SearchByKeywords() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchHybridBlendsAndDeduplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/chunks/points/search":
			_, _ = w.Write([]byte(`{"result":[
				{"id":"p1","score":1.0,"payload":{"text":"shared chunk","doc_id":"doc-1"}},
				{"id":"p2","score":0.5,"payload":{"text":"semantic only","doc_id":"doc-2"}}
			]}`))
		case "/collections/chunks/points/scroll":
			_, _ = w.Write([]byte(`{"result":{"points":[
				{"id":"p1","payload":{"text":"shared chunk","doc_id":"doc-1"}}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	retriever := New(server.URL, "chunks", &embedderFake{vector: []float32{0.3}})
	results, err := retriever.SearchHybrid(context.Background(), "shared chunk", 5, 0.7, 0.3)
	if err != nil {
		t.Fatalf("SearchHybrid() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d", len(results))
	}
	// p1: 0.7*1.0 semantic + 0.3*1.0 keyword; p2: 0.7*0.5 semantic only.
	if results[0].ChunkID != "p1" || results[0].Score != 1 {
		t.Fatalf("unexpected blended head %+v", results[0])
	}
	if results[1].ChunkID != "p2" || results[1].Score != 0.35 {
		t.Fatalf("unexpected blended tail %+v", results[1])
	}
}

func TestSearchHybridSurvivesKeywordLegFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/chunks/points/search":
			_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.8,"payload":{"text":"only semantic","doc_id":"doc-1"}}]}`))
		default:
			http.Error(w, "scroll unavailable", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	retriever := New(server.URL, "chunks", &embedderFake{vector: []float32{0.3}})
	results, err := retriever.SearchHybrid(context.Background(), "only semantic", 5, 0.7, 0.3)
	if err != nil {
		t.Fatalf("SearchHybrid() error = %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "p1" {
		t.Fatalf("expected semantic leg to survive, got %+v", results)
	}
}

func TestSearchSimilarReportsHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection missing", http.StatusNotFound)
	}))
	defer server.Close()

	retriever := New(server.URL, "chunks", &embedderFake{vector: []float32{0.3}})
	_, err := retriever.SearchSimilar(context.Background(), "q", 5, 0)
	if err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestSkipsEmptyContentPayloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.9,"payload":{"doc_id":"doc-1"}},
			{"id":"p2","score":0.8,"payload":{"text":"real chunk","doc_id":"doc-2"}}
		]}`))
	}))
	defer server.Close()

	retriever := New(server.URL, "chunks", &embedderFake{vector: []float32{0.3}})
	results, err := retriever.SearchSimilar(context.Background(), "q", 5, 0)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "p2" {
		t.Fatalf("expected empty-content hit skipped, got %+v", results)
	}
}

package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

// retrievalConfigPayload carries per-request overrides. Absent fields
// fall back to the service default.
type retrievalConfigPayload struct {
	TopK                *int     `json:"top_k"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	SearchMode          *string  `json:"search_mode"`
	EnableRerank        *bool    `json:"enable_rerank"`
	EnableCache         *bool    `json:"enable_cache"`
}

func (p *retrievalConfigPayload) apply(base domain.RetrievalConfig) domain.RetrievalConfig {
	if p == nil {
		return base
	}
	out := base
	if p.TopK != nil {
		out.TopK = *p.TopK
	}
	if p.SimilarityThreshold != nil {
		out.SimilarityThreshold = *p.SimilarityThreshold
	}
	if p.SearchMode != nil {
		out.SearchMode = domain.SearchMode(*p.SearchMode)
	}
	if p.EnableRerank != nil {
		out.EnableRerank = *p.EnableRerank
	}
	if p.EnableCache != nil {
		out.EnableCache = *p.EnableCache
	}
	return out
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	health := rt.retrieval.HealthCheck(r.Context())
	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		SessionID string                  `json:"session_id"`
		Question  string                  `json:"question"`
		Config    *retrievalConfigPayload `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	var cfg *domain.RetrievalConfig
	if req.Config != nil {
		applied := req.Config.apply(rt.retrieval.DefaultConfig())
		cfg = &applied
	}

	answer, err := rt.qa.Ask(r.Context(), req.SessionID, req.Question, cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/qa/sessions/")
	sessionID = strings.TrimSuffix(sessionID, "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	pairs, err := rt.sessions.History(r.Context(), sessionID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pairs == nil {
		pairs = []domain.QAPair{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"qa_pairs":   pairs,
	})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Query  string                  `json:"query"`
		Config *retrievalConfigPayload `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var cfg *domain.RetrievalConfig
	if req.Config != nil {
		applied := req.Config.apply(rt.retrieval.DefaultConfig())
		cfg = &applied
	}

	results, err := rt.retrieval.Search(r.Context(), req.Query, cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.ScoredResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (rt *Router) updateConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.retrieval.DefaultConfig())
	case http.MethodPut:
		var payload retrievalConfigPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		cfg := payload.apply(rt.retrieval.DefaultConfig())
		if err := rt.retrieval.UpdateDefaultConfig(cfg); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) statistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, rt.retrieval.Statistics(r.Context()))
}

func (rt *Router) resetStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rt.retrieval.ResetStatistics()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) cache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.retrieval.CacheInfo(r.Context()))
	case http.MethodDelete:
		pattern := r.URL.Query().Get("pattern")
		cleared := rt.retrieval.ClearCache(r.Context(), pattern)
		writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) warmUpCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Entries []struct {
			Query  string                  `json:"query"`
			Config *retrievalConfigPayload `json:"config"`
		} `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries are required")
		return
	}

	base := rt.retrieval.DefaultConfig()
	entries := make([]domain.WarmUpEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entries = append(entries, domain.WarmUpEntry{
			Query:  entry.Query,
			Config: entry.Config.apply(base),
		})
	}

	warmed := rt.retrieval.WarmUpCache(r.Context(), entries)
	writeJSON(w, http.StatusOK, map[string]any{
		"warmed":    warmed,
		"requested": len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

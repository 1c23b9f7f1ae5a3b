// Package handler wires the ranking engine to its HTTP surface. The
// routes are thin: all ranking semantics live in the engine, which never
// fails, so the handler only parses parameters and shapes the response.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/searchstack/ranker/internal/analytics"
	"github.com/searchstack/ranker/internal/ranker"
	"github.com/searchstack/ranker/internal/ranker/cache"
	"github.com/searchstack/ranker/internal/ranker/tokenizer"
	"github.com/searchstack/ranker/pkg/logger"
	"github.com/searchstack/ranker/pkg/metrics"
	"github.com/searchstack/ranker/pkg/middleware"
)

// Searcher is the engine capability the handler consumes.
type Searcher interface {
	Search(ctx context.Context, query string, k int) []ranker.ScoredDocument
	Health() ranker.Status
	Stats() ranker.GlobalStats
	IndexLive() bool
	MetadataAvailable() bool
}

type Handler struct {
	engine       Searcher
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

type responseMeta struct {
	Count     int   `json:"count"`
	LatencyMs int64 `json:"latency_ms"`
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Results []ranker.ScoredDocument `json:"results"`
	Meta    responseMeta            `json:"meta"`
}

func New(engine Searcher, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		engine:       engine,
		cache:        queryCache,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		if h.metrics != nil {
			h.metrics.SearchQueriesTotal.WithLabelValues("empty_query").Inc()
		}
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	tokens := tokenizer.Tokenize(query)

	var results []ranker.ScoredDocument
	cacheHit := false
	if h.cache != nil {
		results, cacheHit = h.cache.GetOrCompute(ctx, query, limit, func() []ranker.ScoredDocument {
			return h.engine.Search(ctx, query, limit)
		})
	} else {
		results = h.engine.Search(ctx, query, limit)
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", query,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.record(tokens, results, cacheHit, time.Since(start))

	if h.collector != nil {
		event := h.buildEvent(tokens, query, len(results), cacheHit)
		event.LatencyMs = latencyMs
		event.RequestID = middleware.GetRequestID(ctx)
		h.collector.Track(event)
	}

	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Results: results,
		Meta: responseMeta{
			Count:     len(results),
			LatencyMs: latencyMs,
		},
	})
}

// Stats reports the engine's corpus statistics and store availability.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":             h.engine.Health(),
		"avg_doc_length":     stats.AvgDocLength,
		"total_docs":         stats.TotalDocs,
		"index_live":         h.engine.IndexLive(),
		"metadata_available": h.engine.MetadataAvailable(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// buildEvent classifies a completed search for the analytics stream. A
// query whose tokens match nothing is a zero_result event; otherwise the
// type reflects the cache outcome when caching is enabled.
func (h *Handler) buildEvent(tokens []string, query string, returned int, cacheHit bool) analytics.SearchEvent {
	eventType := analytics.EventSearch
	switch {
	case returned == 0 && len(tokens) > 0:
		eventType = analytics.EventZeroResult
	case h.cache != nil && cacheHit:
		eventType = analytics.EventCacheHit
	case h.cache != nil:
		eventType = analytics.EventCacheMiss
	}
	return analytics.SearchEvent{
		Type:      eventType,
		Query:     query,
		Tokens:    tokens,
		Returned:  returned,
		CacheHit:  cacheHit,
		Degraded:  h.engine.Health() != ranker.StatusHealthy,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) record(tokens []string, results []ranker.ScoredDocument, cacheHit bool, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType := "hit"
	switch {
	case len(tokens) == 0:
		resultType = "empty_query"
	case len(results) == 0:
		resultType = "zero_result"
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(results)))
	if h.cache != nil {
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

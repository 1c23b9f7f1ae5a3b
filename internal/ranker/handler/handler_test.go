package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/searchstack/ranker/internal/analytics"
	"github.com/searchstack/ranker/internal/ranker"
	"github.com/searchstack/ranker/internal/ranker/cache"
	"github.com/searchstack/ranker/pkg/config"
	"github.com/searchstack/ranker/pkg/metrics"
)

type fakeSearcher struct {
	results  []ranker.ScoredDocument
	lastK    int
	lastQ    string
	searches int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) []ranker.ScoredDocument {
	f.searches++
	f.lastQ = query
	f.lastK = k
	return f.results
}

func (f *fakeSearcher) Health() ranker.Status { return ranker.StatusHealthy }

func (f *fakeSearcher) Stats() ranker.GlobalStats {
	return ranker.GlobalStats{AvgDocLength: 50, TotalDocs: 10}
}

func (f *fakeSearcher) IndexLive() bool         { return true }
func (f *fakeSearcher) MetadataAvailable() bool { return true }

func newTestHandler(engine *fakeSearcher) *Handler {
	return New(engine, nil, nil, nil, 10, 100)
}

func doSearch(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	return rec
}

func TestSearchRequiresQuery(t *testing.T) {
	h := newTestHandler(&fakeSearcher{})
	rec := doSearch(t, h, "/api/v1/search")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSearchLimitValidation(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantK      int
	}{
		{"default_limit", "/api/v1/search?q=cats", http.StatusOK, 10},
		{"explicit_limit", "/api/v1/search?q=cats&limit=5", http.StatusOK, 5},
		{"limit_clamped", "/api/v1/search?q=cats&limit=5000", http.StatusOK, 100},
		{"zero_limit", "/api/v1/search?q=cats&limit=0", http.StatusBadRequest, 0},
		{"negative_limit", "/api/v1/search?q=cats&limit=-3", http.StatusBadRequest, 0},
		{"garbage_limit", "/api/v1/search?q=cats&limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeSearcher{}
			h := newTestHandler(engine)
			rec := doSearch(t, h, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && engine.lastK != tt.wantK {
				t.Errorf("engine received k = %d, want %d", engine.lastK, tt.wantK)
			}
		})
	}
}

func TestSearchResponseEnvelope(t *testing.T) {
	engine := &fakeSearcher{results: []ranker.ScoredDocument{
		{ID: 3, Score: 1.4816, URL: "http://example.com/cats3", Title: "http://example.com/cats3"},
		{ID: 4, Score: 1.4816, URL: "http://example.com/cats4", Title: "http://example.com/cats4"},
	}}
	h := newTestHandler(engine)

	rec := doSearch(t, h, "/api/v1/search?q=cats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Query != "cats" {
		t.Errorf("query = %q, want %q", resp.Query, "cats")
	}
	if resp.Meta.Count != 2 || len(resp.Results) != 2 {
		t.Errorf("count = %d with %d results, want 2/2", resp.Meta.Count, len(resp.Results))
	}
	if resp.Results[0].ID != 3 {
		t.Errorf("results[0].ID = %d, want 3", resp.Results[0].ID)
	}
}

func TestSearchEmptyResultIsJSONArray(t *testing.T) {
	engine := &fakeSearcher{results: []ranker.ScoredDocument{}}
	h := newTestHandler(engine)

	rec := doSearch(t, h, "/api/v1/search?q=zzz")
	var resp struct {
		Results []ranker.ScoredDocument `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Results == nil {
		t.Error("results serialized as null, want []")
	}
}

func TestBuildEventClassification(t *testing.T) {
	tokens := []string{"computer", "cats"}
	tests := []struct {
		name     string
		cached   bool
		tokens   []string
		returned int
		cacheHit bool
		want     analytics.EventType
	}{
		{"plain_search", false, tokens, 2, false, analytics.EventSearch},
		{"zero_result", false, tokens, 0, false, analytics.EventZeroResult},
		{"zero_result_beats_cache_hit", true, tokens, 0, true, analytics.EventZeroResult},
		{"cache_hit", true, tokens, 2, true, analytics.EventCacheHit},
		{"cache_miss", true, tokens, 2, false, analytics.EventCacheMiss},
		{"no_tokens_no_results", false, nil, 0, false, analytics.EventSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeSearcher{})
			if tt.cached {
				h.cache = cache.New(nil, config.RedisConfig{})
			}
			ev := h.buildEvent(tt.tokens, "computer cats", tt.returned, tt.cacheHit)
			if ev.Type != tt.want {
				t.Errorf("event type = %q, want %q", ev.Type, tt.want)
			}
			if len(ev.Tokens) != len(tt.tokens) {
				t.Errorf("event carries %d tokens, want %d", len(ev.Tokens), len(tt.tokens))
			}
		})
	}
}

func TestSearchTracksEventWithTokens(t *testing.T) {
	collector := analytics.NewCollector(nil, 8)
	h := New(&fakeSearcher{}, nil, collector, nil, 10, 100)

	doSearch(t, h, "/api/v1/search?q=Computer+CATS!")

	select {
	case ev := <-collector.Events():
		if ev.Type != analytics.EventZeroResult {
			t.Errorf("event type = %q, want %q", ev.Type, analytics.EventZeroResult)
		}
		wantTokens := []string{"computer", "cats"}
		if len(ev.Tokens) != len(wantTokens) {
			t.Fatalf("tokens = %v, want %v", ev.Tokens, wantTokens)
		}
		for i, tok := range wantTokens {
			if ev.Tokens[i] != tok {
				t.Errorf("tokens[%d] = %q, want %q", i, ev.Tokens[i], tok)
			}
		}
		if ev.Query != "Computer CATS!" {
			t.Errorf("event query = %q, want raw query", ev.Query)
		}
	default:
		t.Fatal("no event tracked for handled search")
	}
}

func TestSearchQueryMetricsByResultType(t *testing.T) {
	m := metrics.New()
	engine := &fakeSearcher{results: []ranker.ScoredDocument{{ID: 1, Score: 1.0}}}
	h := New(engine, nil, nil, m, 10, 100)

	// Missing q and a punctuation-only query that tokenizes to nothing
	// both count as empty_query.
	doSearch(t, h, "/api/v1/search")
	doSearch(t, h, "/api/v1/search?q=%21%21%21")
	doSearch(t, h, "/api/v1/search?q=cats")

	engine.results = nil
	doSearch(t, h, "/api/v1/search?q=cats")

	counts := map[string]float64{
		"empty_query": 2,
		"hit":         1,
		"zero_result": 1,
	}
	for label, want := range counts {
		got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(label))
		if got != want {
			t.Errorf("search_queries_total{result_type=%q} = %v, want %v", label, got, want)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	h := newTestHandler(&fakeSearcher{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != string(ranker.StatusHealthy) {
		t.Errorf("status = %v, want %q", body["status"], ranker.StatusHealthy)
	}
	if body["avg_doc_length"] != 50.0 {
		t.Errorf("avg_doc_length = %v, want 50", body["avg_doc_length"])
	}
}

func TestCacheStatsDisabled(t *testing.T) {
	h := newTestHandler(&fakeSearcher{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	h.CacheStats(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "disabled" {
		t.Errorf("status = %q, want disabled", body["status"])
	}
}

func TestCacheInvalidateDisabled(t *testing.T) {
	h := newTestHandler(&fakeSearcher{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil)
	rec := httptest.NewRecorder()
	h.CacheInvalidate(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

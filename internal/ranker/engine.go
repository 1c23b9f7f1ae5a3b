// Package ranker implements the BM25 ranking engine: query tokenisation,
// posting-list retrieval, candidate aggregation, scoring, top-k selection,
// and metadata enrichment. The engine is built once at process start and
// keeps answering queries in degraded mode when its backing stores are
// unavailable.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/searchstack/ranker/internal/ranker/index"
	"github.com/searchstack/ranker/internal/ranker/metadata"
	"github.com/searchstack/ranker/internal/ranker/scorer"
	"github.com/searchstack/ranker/internal/ranker/tokenizer"
	"github.com/searchstack/ranker/pkg/config"
	"github.com/searchstack/ranker/pkg/metrics"
	"github.com/searchstack/ranker/pkg/postgres"
)

// DefaultLimit is the number of results returned when the caller does not
// ask for a specific k.
const DefaultLimit = 10

// Status is the engine lifecycle state. A freshly constructed engine is
// healthy when both stores are live and degraded otherwise; Close moves it
// to closed.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusClosed   Status = "closed"
)

// ScoredDocument is one ranked search result.
type ScoredDocument struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
}

// GlobalStats holds the corpus statistics computed once at engine
// construction. They are immutable for the engine's lifetime.
type GlobalStats struct {
	AvgDocLength float64 `json:"avg_doc_length"`
	TotalDocs    int64   `json:"total_docs"`
}

// Engine orchestrates tokenizer, index client, metadata store, and scorer.
type Engine struct {
	index     index.Client
	indexLive bool
	meta      metadata.Store
	stats     GlobalStats

	logger    *slog.Logger
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// New constructs an Engine from configuration. Store failures never fail
// construction: an unreachable metadata database leaves the engine on fixed
// defaults, an unopenable index falls back to the in-memory stub. The
// resulting degradation is reported through Health, not through errors.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *Engine {
	logger := slog.Default().With("component", "ranking-engine")

	var meta metadata.Store
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		logger.Warn("metadata store unavailable, using defaults", "error", err)
		meta = metadata.NewUnavailable()
	} else {
		meta = metadata.NewPostgres(pg, m)
		logger.Info("connected to metadata store", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	var idx index.Client
	indexLive := false
	store, err := index.Open(cfg.Index.Path, cfg.Index.OpenTimeout, m)
	if err != nil {
		logger.Warn("index store unavailable, using stub index", "path", cfg.Index.Path, "error", err)
		idx = index.NewStub()
	} else {
		idx = store
		indexLive = true
		logger.Info("opened index store", "path", cfg.Index.Path)
	}

	e := NewFromStores(ctx, idx, indexLive, meta)
	if m != nil {
		m.StoreDegraded.WithLabelValues("index").Set(boolToGauge(!indexLive))
		m.StoreDegraded.WithLabelValues("metadata").Set(boolToGauge(!meta.Available()))
	}
	return e
}

// NewFromStores wires an Engine from already-constructed collaborators and
// computes the corpus statistics. indexLive reports whether idx is the
// persisted store rather than the stub.
func NewFromStores(ctx context.Context, idx index.Client, indexLive bool, meta metadata.Store) *Engine {
	e := &Engine{
		index:     idx,
		indexLive: indexLive,
		meta:      meta,
		logger:    slog.Default().With("component", "ranking-engine"),
	}
	e.stats = GlobalStats{
		AvgDocLength: meta.AverageDocumentLength(ctx),
		TotalDocs:    meta.TotalDocumentCount(ctx),
	}
	e.logger.Info("engine initialized",
		"avgdl", e.stats.AvgDocLength,
		"total_docs", e.stats.TotalDocs,
		"status", e.Health(),
	)
	return e
}

// Search ranks documents for a free-text query and returns at most k
// results. It never returns an error: tokenless queries yield an empty
// slice without touching a store, and every store failure mid-query
// degrades to the documented fallback. Cancelling ctx aborts the remaining
// work and yields an empty result rather than a partial ranking.
func (e *Engine) Search(ctx context.Context, query string, k int) []ScoredDocument {
	if k <= 0 {
		k = DefaultLimit
	}

	tokens := dedupe(tokenizer.Tokenize(query))
	if len(tokens) == 0 {
		return []ScoredDocument{}
	}

	// Union of posting lists. candidates keeps first-encountered order:
	// token order, then posting order within a token. The final ranking
	// stable-sorts this order, which fixes the tie-break.
	postings := make(map[string][]int64, len(tokens))
	candidates := make([]int64, 0)
	seen := make(map[int64]struct{})
	for _, token := range tokens {
		if ctx.Err() != nil {
			return []ScoredDocument{}
		}
		docIDs, found := e.index.Lookup(ctx, token)
		if !found {
			continue
		}
		postings[token] = docIDs
		for _, id := range docIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return []ScoredDocument{}
	}

	lengths := e.meta.BatchDocumentLengths(ctx, candidates)

	scores := make(map[int64]float64, len(candidates))
	for _, token := range tokens {
		docIDs := postings[token]
		if len(docIDs) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return []ScoredDocument{}
		}
		idf := scorer.IDF(e.stats.TotalDocs, int64(len(docIDs)))
		for _, id := range docIDs {
			// Missing length falls back to avgdl inside Score.
			scores[id] += scorer.Score(idf, float64(lengths[id]), e.stats.AvgDocLength)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]ScoredDocument, 0, len(candidates))
	for _, id := range candidates {
		results = append(results, e.enrich(ctx, id, scores[id]))
	}
	return results
}

// enrich resolves the document url, substituting a synthetic placeholder
// when the id is unresolvable or the metadata store is down. Title is
// derived from the url; the corpus has no separate title field.
func (e *Engine) enrich(ctx context.Context, id int64, score float64) ScoredDocument {
	if url, ok := e.meta.ResolveURL(ctx, id); ok {
		return ScoredDocument{ID: id, Score: score, URL: url, Title: url}
	}
	// ".invalid" is reserved (RFC 2606), so synthetic urls can never
	// collide with crawled ones.
	return ScoredDocument{
		ID:    id,
		Score: score,
		URL:   fmt.Sprintf("http://unresolved.invalid/doc/%d", id),
		Title: fmt.Sprintf("Unresolved Document %d", id),
	}
}

// Health reports the engine state without running a query.
func (e *Engine) Health() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return StatusClosed
	}
	if e.indexLive && e.meta.Available() {
		return StatusHealthy
	}
	return StatusDegraded
}

// Stats returns the corpus statistics captured at construction.
func (e *Engine) Stats() GlobalStats {
	return e.stats
}

// IndexLive reports whether the persisted index (rather than the stub) is
// serving lookups.
func (e *Engine) IndexLive() bool {
	return e.indexLive
}

// MetadataAvailable reports whether the metadata database is connected.
func (e *Engine) MetadataAvailable() bool {
	return e.meta.Available()
}

// Close releases the store handles. It is idempotent and safe to call on a
// partially-degraded engine.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		if err := e.meta.Close(); err != nil {
			e.logger.Error("closing metadata store", "error", err)
		}
		if closer, ok := e.index.(*index.Store); ok {
			if err := closer.Close(); err != nil {
				e.logger.Error("closing index store", "error", err)
			}
		}
		e.logger.Info("engine closed")
	})
}

// dedupe drops repeated query tokens, keeping first-occurrence order so a
// repeated term cannot double its score contribution.
func dedupe(tokens []string) []string {
	if len(tokens) < 2 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func boolToGauge(degraded bool) float64 {
	if degraded {
		return 1
	}
	return 0
}

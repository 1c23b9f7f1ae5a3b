// Package metadata reads per-document metadata (lengths, urls) and
// corpus-wide statistics from the relational store. Every method degrades
// to a documented default on failure instead of returning an error: the
// ranking path must keep answering queries when the database is down.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/lib/pq"
	"github.com/searchstack/ranker/pkg/metrics"
	"github.com/searchstack/ranker/pkg/postgres"
)

// Defaults substituted when the store is unreachable or a query fails.
const (
	DefaultAvgDocLength = 100.0
	DefaultTotalDocs    = 1000
)

// Store exposes the metadata the ranking engine needs. Implementations
// never return errors; failures collapse to defaults.
type Store interface {
	// AverageDocumentLength returns the corpus mean document length, or
	// DefaultAvgDocLength on failure. The result is always > 0.
	AverageDocumentLength(ctx context.Context) float64
	// TotalDocumentCount returns the corpus size, or DefaultTotalDocs on
	// failure.
	TotalDocumentCount(ctx context.Context) int64
	// BatchDocumentLengths resolves lengths for ids. Unresolvable ids are
	// simply absent from the result; on failure the map is empty.
	BatchDocumentLengths(ctx context.Context, ids []int64) map[int64]int64
	// ResolveURL returns the url for id, or ok=false when the id is
	// unknown or the store is unreachable.
	ResolveURL(ctx context.Context, id int64) (url string, ok bool)
	// Available reports whether the backing connection was established.
	Available() bool
	// Close releases the backing connection.
	Close() error
}

// PostgresStore is the live Store over the documents table.
type PostgresStore struct {
	client  *postgres.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPostgres wraps an established postgres client. m may be nil.
func NewPostgres(client *postgres.Client, m *metrics.Metrics) *PostgresStore {
	return &PostgresStore{
		client:  client,
		logger:  slog.Default().With("component", "metadata-store"),
		metrics: m,
	}
}

func (s *PostgresStore) count(kind, status string) {
	if s.metrics != nil {
		s.metrics.MetadataQueriesTotal.WithLabelValues(kind, status).Inc()
	}
}

func (s *PostgresStore) AverageDocumentLength(ctx context.Context) float64 {
	var avg sql.NullFloat64
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT AVG(length) FROM documents`,
	).Scan(&avg)
	if err != nil {
		s.logger.Error("computing average document length", "error", err)
		s.count("avg_doc_length", "error")
		return DefaultAvgDocLength
	}
	s.count("avg_doc_length", "ok")
	if !avg.Valid || avg.Float64 <= 0 {
		// Empty table; keep avgdl positive so BM25 never divides by zero.
		return DefaultAvgDocLength
	}
	return avg.Float64
}

func (s *PostgresStore) TotalDocumentCount(ctx context.Context) int64 {
	var count int64
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents`,
	).Scan(&count)
	if err != nil {
		s.logger.Error("counting documents", "error", err)
		s.count("total_docs", "error")
		return DefaultTotalDocs
	}
	s.count("total_docs", "ok")
	return count
}

func (s *PostgresStore) BatchDocumentLengths(ctx context.Context, ids []int64) map[int64]int64 {
	lengths := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return lengths
	}
	// ANY($1) keeps single-id and multi-id requests on the same query
	// shape, so their semantics cannot drift apart.
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, length FROM documents WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		s.logger.Error("fetching document lengths", "ids", len(ids), "error", err)
		s.count("batch_lengths", "error")
		return lengths
	}
	defer rows.Close()

	for rows.Next() {
		var id, length int64
		if err := rows.Scan(&id, &length); err != nil {
			s.logger.Error("scanning document length", "error", err)
			continue
		}
		lengths[id] = length
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterating document lengths", "error", err)
		s.count("batch_lengths", "error")
		return lengths
	}
	s.count("batch_lengths", "ok")
	return lengths
}

func (s *PostgresStore) ResolveURL(ctx context.Context, id int64) (string, bool) {
	var url string
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT url FROM documents WHERE id = $1`,
		id,
	).Scan(&url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.count("resolve_url", "miss")
		} else {
			s.logger.Error("resolving document url", "doc_id", id, "error", err)
			s.count("resolve_url", "error")
		}
		return "", false
	}
	s.count("resolve_url", "ok")
	return url, true
}

func (s *PostgresStore) Available() bool {
	return true
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}

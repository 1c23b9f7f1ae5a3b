// Package index provides read access to the inverted index built by the
// external indexer. The index is a key-value database mapping a UTF-8 token
// to a comma-separated list of decimal document ids.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/searchstack/ranker/pkg/metrics"
)

// postingsBucket is the bucket the indexer writes token postings into.
var postingsBucket = []byte("postings")

// Client looks up the posting list for a single token. found is false when
// the token has no postings; lookup errors are handled inside the
// implementation and surface as a miss.
type Client interface {
	Lookup(ctx context.Context, token string) (docIDs []int64, found bool)
}

// Store is a bolt-backed Client over the persisted index. The database is
// opened read-only, so concurrent lookups need no locking.
type Store struct {
	db      *bolt.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Open opens the index database at path read-only. It fails when the file
// is missing, unreadable, or does not contain the postings bucket; callers
// fall back to the stub client in that case. m may be nil.
func Open(path string, timeout time.Duration, m *metrics.Metrics) (*Store, error) {
	db, err := bolt.Open(path, 0o400, &bolt.Options{
		ReadOnly: true,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening index at %s: %w", path, err)
	}
	err = db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(postingsBucket) == nil {
			return fmt.Errorf("bucket %q not found", postingsBucket)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying index at %s: %w", path, err)
	}
	return &Store{
		db:      db,
		logger:  slog.Default().With("component", "index-store"),
		metrics: m,
	}, nil
}

// Lookup fetches the posting list for token. A read error on the key is
// logged and treated as a miss; it never aborts the query.
func (s *Store) Lookup(ctx context.Context, token string) ([]int64, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(postingsBucket).Get([]byte(token)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("index lookup failed", "token", token, "error", err)
		s.count("error")
		return nil, false
	}
	if raw == nil {
		s.count("miss")
		return nil, false
	}
	docIDs, err := decodePostings(string(raw))
	if err != nil {
		s.logger.Error("malformed posting list", "token", token, "error", err)
		s.count("error")
		return nil, false
	}
	s.count("hit")
	return docIDs, len(docIDs) > 0
}

func (s *Store) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IndexLookupsTotal.WithLabelValues(outcome).Inc()
	}
}

// Close releases the read-only handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// decodePostings parses the indexer's wire format: decimal document ids
// separated by commas, e.g. "3,4,17".
func decodePostings(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	docIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing doc id %q: %w", part, err)
		}
		docIDs = append(docIDs, id)
	}
	return docIDs, nil
}

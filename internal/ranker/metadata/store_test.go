package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/searchstack/ranker/pkg/metrics"
	"github.com/searchstack/ranker/pkg/postgres"
)

// brokenStore returns a PostgresStore whose connection is already closed:
// every query fails without touching a network, exercising the degrade
// path a live store takes when the database drops mid-flight.
func brokenStore(t *testing.T, m *metrics.Metrics) *PostgresStore {
	t.Helper()
	db, err := sql.Open("postgres", "host=localhost")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("closing handle: %v", err)
	}
	return NewPostgres(&postgres.Client{DB: db}, m)
}

func TestPostgresStoreDegradesOnQueryFailure(t *testing.T) {
	m := metrics.New()
	store := brokenStore(t, m)
	ctx := context.Background()

	if got := store.AverageDocumentLength(ctx); got != DefaultAvgDocLength {
		t.Errorf("AverageDocumentLength = %v, want default %v", got, DefaultAvgDocLength)
	}
	if got := store.TotalDocumentCount(ctx); got != DefaultTotalDocs {
		t.Errorf("TotalDocumentCount = %v, want default %v", got, DefaultTotalDocs)
	}
	if lengths := store.BatchDocumentLengths(ctx, []int64{1, 2}); len(lengths) != 0 {
		t.Errorf("BatchDocumentLengths = %v, want empty map", lengths)
	}
	if url, ok := store.ResolveURL(ctx, 1); ok || url != "" {
		t.Errorf("ResolveURL = (%q, %v), want absent", url, ok)
	}

	// Every failed query lands on the error status of its kind.
	for _, kind := range []string{"avg_doc_length", "total_docs", "batch_lengths", "resolve_url"} {
		got := testutil.ToFloat64(m.MetadataQueriesTotal.WithLabelValues(kind, "error"))
		if got != 1 {
			t.Errorf("metadata_queries_total{kind=%q,status=error} = %v, want 1", kind, got)
		}
	}
}

func TestPostgresStoreAvailable(t *testing.T) {
	store := brokenStore(t, nil)
	// Availability reflects construction, not per-call health: the
	// connection existed when the store was built.
	if !store.Available() {
		t.Error("Available = false, want true")
	}
}

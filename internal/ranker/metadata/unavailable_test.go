package metadata

import (
	"context"
	"testing"
)

func TestUnavailableStoreDefaults(t *testing.T) {
	store := NewUnavailable()
	ctx := context.Background()

	if got := store.AverageDocumentLength(ctx); got != DefaultAvgDocLength {
		t.Errorf("AverageDocumentLength = %v, want %v", got, DefaultAvgDocLength)
	}
	if got := store.TotalDocumentCount(ctx); got != DefaultTotalDocs {
		t.Errorf("TotalDocumentCount = %v, want %v", got, DefaultTotalDocs)
	}

	lengths := store.BatchDocumentLengths(ctx, []int64{1, 2, 3})
	if len(lengths) != 0 {
		t.Errorf("BatchDocumentLengths = %v, want empty map", lengths)
	}
	if lengths == nil {
		t.Error("BatchDocumentLengths returned nil, want empty map")
	}

	if url, ok := store.ResolveURL(ctx, 1); ok || url != "" {
		t.Errorf("ResolveURL = (%q, %v), want absent", url, ok)
	}
	if store.Available() {
		t.Error("Available = true, want false")
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close returned %v, want nil", err)
	}
}

// Single-id and multi-id batches must agree for shared ids regardless of
// the store's internal query shape.
func TestUnavailableBatchShapeConsistency(t *testing.T) {
	store := NewUnavailable()
	ctx := context.Background()

	single := store.BatchDocumentLengths(ctx, []int64{7})
	multi := store.BatchDocumentLengths(ctx, []int64{7, 8})
	if single[7] != multi[7] {
		t.Errorf("single-id batch %v disagrees with multi-id batch %v", single, multi)
	}
}

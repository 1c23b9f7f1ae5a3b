package metadata

import "context"

// UnavailableStore is the Store used when the metadata database could not
// be reached at engine construction. Every method takes the documented
// failure path immediately; the connection is never retried for the
// lifetime of the engine instance.
type UnavailableStore struct{}

// NewUnavailable returns the permanently-degraded Store.
func NewUnavailable() *UnavailableStore {
	return &UnavailableStore{}
}

func (*UnavailableStore) AverageDocumentLength(ctx context.Context) float64 {
	return DefaultAvgDocLength
}

func (*UnavailableStore) TotalDocumentCount(ctx context.Context) int64 {
	return DefaultTotalDocs
}

func (*UnavailableStore) BatchDocumentLengths(ctx context.Context, ids []int64) map[int64]int64 {
	return map[int64]int64{}
}

func (*UnavailableStore) ResolveURL(ctx context.Context, id int64) (string, bool) {
	return "", false
}

func (*UnavailableStore) Available() bool { return false }

func (*UnavailableStore) Close() error { return nil }

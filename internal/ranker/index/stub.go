package index

import "context"

// Stub is the last-resort in-memory Client used when the persisted index
// cannot be opened. It covers a handful of seed tokens so the service stays
// queryable in development and during index rebuilds.
type Stub struct {
	postings map[string][]int64
}

// NewStub returns a Stub with the seed posting lists.
func NewStub() *Stub {
	return &Stub{
		postings: map[string][]int64{
			"computer": {1, 2},
			"cats":     {3, 4},
		},
	}
}

// Lookup returns the seed posting list for token, if any.
func (s *Stub) Lookup(ctx context.Context, token string) ([]int64, bool) {
	docIDs, ok := s.postings[token]
	if !ok {
		return nil, false
	}
	// Callers may append to the result; hand out a copy.
	out := make([]int64, len(docIDs))
	copy(out, docIDs)
	return out, true
}

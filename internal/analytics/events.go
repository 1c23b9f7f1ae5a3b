package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventZeroResult EventType = "zero_result"
)

// SearchEvent is published to the analytics topic for every handled query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Tokens    []string  `json:"tokens,omitempty"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Degraded  bool      `json:"degraded"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

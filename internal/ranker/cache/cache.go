// Package cache is a Redis-backed result cache for search queries.
// Identical queries within the TTL are served without re-ranking, and
// singleflight collapses concurrent misses for the same key into one
// computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/searchstack/ranker/internal/ranker"
	"github.com/searchstack/ranker/pkg/config"
	pkgredis "github.com/searchstack/ranker/pkg/redis"
)

const keyPrefix = "ranker:search:"

type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, query string, limit int) ([]ranker.ScoredDocument, bool) {
	key := c.buildKey(query, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []ranker.ScoredDocument
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, query string, limit int, results []ranker.ScoredDocument) {
	key := c.buildKey(query, limit)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results for (query, limit) or runs
// computeFn once (across concurrent callers) and caches its output. The
// second return reports whether the cache answered.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	computeFn func() []ranker.ScoredDocument,
) ([]ranker.ScoredDocument, bool) {
	if results, ok := c.Get(ctx, query, limit); ok {
		return results, true
	}
	key := c.buildKey(query, limit)
	val, _, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.Get(ctx, query, limit); ok {
			return results, nil
		}
		results := computeFn()
		c.Set(ctx, query, limit, results)
		return results, nil
	})
	return val.([]ranker.ScoredDocument), false
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + "*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery collapses case and whitespace but keeps word order: the
// ranking tie-break depends on token order, so "cats computer" and
// "computer cats" are distinct cache entries.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

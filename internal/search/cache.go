package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

const cachePrefix = "search:"

// ResultCache stores search results in the shared cache.
type ResultCache struct {
	client cache.Client
	logger *observability.Logger
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

// NewResultCache wraps client. A nil client disables caching.
func NewResultCache(client cache.Client, logger *observability.Logger, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResultCache{client: client, logger: logger, ttl: ttl}
}

// Key derives search:<mode>:<hash> from the query and options.
func (c *ResultCache) Key(mode Mode, query string, opts Options) string {
	types := append([]string(nil), opts.Types...)
	sort.Strings(types)

	parts := []string{
		strings.ToLower(strings.TrimSpace(query)),
		strconv.Itoa(opts.Limit),
		strconv.FormatFloat(opts.MinSimilarity, 'f', 4, 64),
		strings.Join(types, ","),
		strconv.FormatBool(opts.IncludeContext),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return cachePrefix + string(mode) + ":" + hex.EncodeToString(sum[:16])
}

// Get loads cached results for key.
func (c *ResultCache) Get(ctx context.Context, key string) ([]Result, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	var out []Result
	if err := cache.GetJSON(ctx, c.client, key, &out); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return out, true
}

// Set stores results under key.
func (c *ResultCache) Set(ctx context.Context, key string, results []Result) {
	if c == nil || c.client == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.client, key, results, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache search results")
		return
	}
	c.stores.Add(1)
}

// Invalidate drops every cached search result.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.DeleteByPrefix(ctx, cachePrefix)
}

// CacheStats counts cache traffic since start-up.
type CacheStats struct {
	Enabled bool    `json:"enabled"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Stored  int64   `json:"stored"`
	HitRate float64 `json:"hit_rate"`
}

// Stats reports cache counters.
func (c *ResultCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	s := CacheStats{
		Enabled: c.client != nil,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stored:  c.stores.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

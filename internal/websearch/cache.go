package websearch

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	DefaultCacheTTL = 10 * time.Minute

	cacheNumCounters = 1e5
	cacheMaxCost     = 1 << 24
	cacheBufferItems = 64
)

// CachedSearcher remembers successful lookups for a fixed TTL. Sentinel
// results and errors go straight through.
type CachedSearcher struct {
	inner Searcher
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCached(inner Searcher, ttl time.Duration) (*CachedSearcher, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &CachedSearcher{inner: inner, cache: cache, ttl: ttl}, nil
}

func (c *CachedSearcher) Search(ctx context.Context, query string) (string, error) {
	key := cacheKey(query)
	if value, ok := c.cache.Get(key); ok {
		if result, ok := value.(string); ok {
			return result, nil
		}
	}
	result, err := c.inner.Search(ctx, query)
	if err != nil || IsSentinel(result) {
		return result, err
	}
	c.cache.SetWithTTL(key, result, int64(len(result)), c.ttl)
	c.cache.Wait()
	return result, nil
}

func (c *CachedSearcher) Close() {
	c.cache.Close()
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

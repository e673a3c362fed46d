package rights

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CacheObserver is notified of cache lookups.
type CacheObserver interface {
	ObserveCacheLookup(hit bool)
}

// CacheStats holds cache statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	ItemCount int64
	HitRate   float64
}

type cachedRight struct {
	right *UserRight
}

// sharedLoadTimeout bounds a load shared by concurrent callers. The load is
// detached from any one caller's context.
const sharedLoadTimeout = 10 * time.Second

// CachedStore puts a TTL LRU cache in front of Get. Absent rights are cached
// too. Every write through the store drops the affected entries.
type CachedStore struct {
	Store

	cache      *lru.LRU[string, cachedRight]
	group      singleflight.Group
	generation atomic.Uint64
	hits       atomic.Int64
	misses     atomic.Int64
	observer   CacheObserver
}

// NewCachedStore wraps store with a cache of at most size entries
func NewCachedStore(store Store, size int, ttl time.Duration, observer CacheObserver) *CachedStore {
	if size < 10 {
		size = 10
	}
	return &CachedStore{
		Store:    store,
		cache:    lru.NewLRU[string, cachedRight](size, nil, ttl),
		observer: observer,
	}
}

func cacheKey(userID, resourceID string, rightType RightType) string {
	return fmt.Sprintf("%d\x00%s\x00%s", int(rightType), userID, resourceID)
}

// Get returns the cached right or loads it once for all concurrent callers.
func (c *CachedStore) Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error) {
	key := cacheKey(userID, resourceID, rightType)
	if entry, ok := c.cache.Get(key); ok {
		c.record(true)
		return copyRight(entry.right), nil
	}
	c.record(false)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		gen := c.generation.Load()
		right, err := c.Store.Get(loadCtx, userID, resourceID, rightType)
		if err != nil {
			return nil, err
		}
		// a write landed while loading; the value may already be stale
		if c.generation.Load() == gen {
			c.cache.Add(key, cachedRight{right: right})
		}
		return right, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyRight(res.Val.(*UserRight)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetRight writes through and invalidates the key.
func (c *CachedStore) SetRight(ctx context.Context, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	defer c.invalidate(userID, resourceID, rightType)
	return c.Store.SetRight(ctx, userID, resourceID, rightType, rights)
}

// RemoveRight writes through and invalidates the key.
func (c *CachedStore) RemoveRight(ctx context.Context, userID, resourceID string, rightType RightType) error {
	defer c.invalidate(userID, resourceID, rightType)
	return c.Store.RemoveRight(ctx, userID, resourceID, rightType)
}

// CreateRights writes through and invalidates every right type of the pair,
// since inherited grants may touch types outside granted.
func (c *CachedStore) CreateRights(ctx context.Context, userID, resourceID string, granted map[RightType]Permission, inherit *InheritForm) error {
	defer func() {
		for _, t := range RightTypes() {
			c.invalidate(userID, resourceID, t)
		}
	}()
	return c.Store.CreateRights(ctx, userID, resourceID, granted, inherit)
}

// RemoveResource writes through and purges the cache.
func (c *CachedStore) RemoveResource(ctx context.Context, resourceID string) error {
	defer func() {
		c.generation.Add(1)
		c.cache.Purge()
	}()
	return c.Store.RemoveResource(ctx, resourceID)
}

// Stats returns cache statistics
func (c *CachedStore) Stats() CacheStats {
	stats := CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: int64(c.cache.Len()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (c *CachedStore) invalidate(userID, resourceID string, rightType RightType) {
	c.generation.Add(1)
	c.cache.Remove(cacheKey(userID, resourceID, rightType))
}

func (c *CachedStore) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.observer != nil {
		c.observer.ObserveCacheLookup(hit)
	}
}

func copyRight(right *UserRight) *UserRight {
	if right == nil {
		return nil
	}
	cp := *right
	return &cp
}

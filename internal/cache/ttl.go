// Package cache implements the time-windowed caches in front of the third-party APIs.
//
// A TTL cache keeps at most one value per key. A value is served while it is younger
// than the TTL and is overwritten by the next successful load; nothing is evicted
// otherwise. Concurrent loads for the same key are collapsed into one call.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/personal-site-api/internal/clock"
	"github.com/JakeFAU/personal-site-api/internal/metrics"
)

// DefaultLoadTimeout bounds a shared load once it is detached from its callers.
const DefaultLoadTimeout = time.Minute

// LoadFunc produces a fresh value for a key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a mutex-guarded map of timestamped values.
type TTL[K comparable, V any] struct {
	name        string
	ttl         time.Duration
	loadTimeout time.Duration
	clock       clock.Clock

	mu      sync.Mutex
	entries map[K]entry[V]

	group singleflight.Group
}

// NewTTL creates a cache whose entries stay fresh for ttl. The name labels metrics.
func NewTTL[K comparable, V any](name string, ttl time.Duration, clk clock.Clock) *TTL[K, V] {
	return &TTL[K, V]{
		name:        name,
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		clock:       clk,
		entries:     make(map[K]entry[V]),
	}
}

// Get returns the cached value when it is younger than the TTL.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshLocked(key)
}

// Set stores value for key, stamped with the current time.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now()}
}

// Len reports how many keys have ever been stored.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad serves a fresh cached value or calls load, storing the result on success.
// Failed loads leave any previous entry untouched. A caller whose ctx ends stops waiting,
// but the load keeps running for the other callers and still fills the cache.
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load LoadFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		metrics.ObserveCache(c.name, metrics.CacheHit)
		return v, nil
	}
	metrics.ObserveCache(c.name, metrics.CacheMiss)

	ch := c.group.DoChan(fmt.Sprint(key), func() (any, error) {
		// Another caller may have refreshed the entry while we waited on the group.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		// The load outlives any single waiter; each waiter gives up on its own context below.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		metrics.ObserveCache(c.name, metrics.CacheError)
		return zero, fmt.Errorf("load %s cache entry: %w", c.name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			metrics.ObserveCache(c.name, metrics.CacheError)
			return zero, fmt.Errorf("load %s cache entry: %w", c.name, res.Err)
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

func (c *TTL[K, V]) freshLocked(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok || c.clock.Now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

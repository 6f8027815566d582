package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Stats reports cache effectiveness
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Collapsed int64 `json:"collapsed"` // callers that shared another caller's in-flight load
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type entry[V any] struct {
	key        uint64
	value      V
	insertedAt time.Time
}

// Cache is a TTL cache keyed by request fingerprint. Concurrent misses for the
// same key share one load; failed loads are never stored.
type Cache[V any] struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List // front = oldest insertion
	stats   Stats

	group singleflight.Group
	now   func() time.Time
}

// New creates a cache. ttl <= 0 disables storage; maxEntries <= 0 means unbounded.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[uint64]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (c *Cache[V]) getLocked(key uint64) (V, bool) {
	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(el)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, evicting the oldest entries over capacity
func (c *Cache[V]) Put(key uint64, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	c.entries[key] = c.order.PushBack(&entry[V]{key: key, value: value, insertedAt: c.now()})

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Front())
		c.stats.Evictions++
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
}

// Do returns the cached value for key or runs load once for all concurrent
// callers of the same key. cached reports whether the value came from storage.
// The load outlives a caller that gives up, so later callers still share it.
func (c *Cache[V]) Do(ctx context.Context, key uint64, load func(context.Context) (V, error)) (value V, cached bool, err error) {
	if err := ctx.Err(); err != nil {
		return value, false, err
	}
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.stats.Hits++
		c.mu.Unlock()
		return v, true, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	ch := c.group.DoChan(strconv.FormatUint(key, 16), func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.Put(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.mu.Lock()
			c.stats.Collapsed++
			c.mu.Unlock()
		}
		v, _ := res.Val.(V)
		return v, false, res.Err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Purge removes expired entries and returns how many were dropped
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*entry[V]).insertedAt) >= c.ttl {
			c.removeLocked(el)
			removed++
		} else {
			// insertion order means everything after is younger
			break
		}
		el = next
	}
	return removed
}

// Len returns the number of stored entries, live or not yet purged
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of cache counters
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}

// Package cache provides a time-boxed, capacity-bounded in-memory cache for
// results of expensive accessibility queries.
//
// An entry stays valid while it keeps being read: every hit refreshes its
// last access time, so only entries left untouched for longer than their TTL
// expire. When the cache is full the entry with the oldest last access is
// evicted.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"go.aimuz.me/chatwatch/internal/telemetry"
)

const (
	// DefaultTTL is used when Config.TTL is zero.
	DefaultTTL = 500 * time.Millisecond
	// DefaultCapacity is used when Config.Capacity is zero.
	DefaultCapacity = 50
)

// Config holds cache settings. Zero values are replaced with defaults.
type Config struct {
	TTL      time.Duration
	Capacity int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Len       int
}

type entry[V any] struct {
	key        string
	value      V
	createdAt  time.Time
	lastAccess time.Time
	ttl        time.Duration
}

func (e *entry[V]) valid(now time.Time) bool {
	return now.Sub(e.lastAccess) < e.ttl
}

// Cache is a TTL cache with touch-on-read and LRU eviction.
// It is safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front is most recently accessed
	ttl      time.Duration
	capacity int
	now      func() time.Time

	hits, misses, evictions int64

	group singleflight.Group

	hitCounter   metric.Int64Counter
	missCounter  metric.Int64Counter
	evictCounter metric.Int64Counter
}

// New creates a cache.
func New[V any](cfg Config) *Cache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache[V]{
		entries:      make(map[string]*list.Element),
		order:        list.New(),
		ttl:          cfg.TTL,
		capacity:     cfg.Capacity,
		now:          cfg.Now,
		hitCounter:   telemetry.Counter("chatwatch.cache.hits", "Cache lookups that returned a live entry"),
		missCounter:  telemetry.Counter("chatwatch.cache.misses", "Cache lookups that found nothing or an expired entry"),
		evictCounter: telemetry.Counter("chatwatch.cache.evictions", "Entries evicted to respect capacity"),
	}
}

// Get returns the value stored under key if it has not expired, refreshing
// its last access time.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	var zero V
	now := c.now()

	el, ok := c.entries[key]
	if !ok {
		c.miss()
		return zero, false
	}

	e := el.Value.(*entry[V])
	if !e.valid(now) {
		c.removeLocked(el)
		c.miss()
		return zero, false
	}

	e.lastAccess = now
	c.order.MoveToFront(el)
	c.hits++
	c.hitCounter.Add(context.Background(), 1)
	return e.value, true
}

func (c *Cache[V]) miss() {
	c.misses++
	c.missCounter.Add(context.Background(), 1)
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, 0)
}

// SetTTL stores value under key. A non-positive ttl selects the default.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.createdAt = now
		e.lastAccess = now
		e.ttl = ttl
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
			c.evictCounter.Add(context.Background(), 1)
		}
	}

	c.entries[key] = c.order.PushFront(&entry[V]{
		key:        key,
		value:      value,
		createdAt:  now,
		lastAccess: now,
		ttl:        ttl,
	})
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent callers for the same key share one factory call.
// The factory runs without the cache lock held; its errors are not cached.
func (c *Cache[V]) GetOrCompute(key string, factory func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := factory()
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// InvalidatePrefix removes every key starting with prefix and reports how
// many were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
			n++
		}
	}
	return n
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Len:       len(c.entries),
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
}

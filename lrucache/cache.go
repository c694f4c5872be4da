/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// LRUCache is a fixed-capacity cache with LRU eviction, per-entry TTL,
// and Prometheus metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	defaultTTL time.Duration

	onEvict func(key K, value V)

	mu      sync.RWMutex
	order   *list.List          // most recently used entries in front
	entries map[K]*list.Element // each element holds a *lruEntry

	builds buildGroup[K, V]

	metrics MetricsCollector
}

// Options holds optional parameters for LRUCache.
type Options[K comparable, V any] struct {
	// DefaultTTL is applied to entries added without an explicit TTL.
	// Expired entries linger until the next access or a periodic
	// cleanup pass (see RunPeriodicCleanup).
	DefaultTTL time.Duration

	// OnEvict, when not nil, is called for every entry leaving the cache:
	// evicted by capacity, expired, removed, or purged.
	// It is called without the cache lock held,
	// so it may use the cache, but must not assume the entry is still absent.
	// Use it to release resources held by cached values.
	OnEvict func(key K, value V)
}

// New creates an LRUCache holding at most maxEntries entries.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options[K, V]{})
}

// NewWithOpts is a version of New that accepts options.
// A nil metricsCollector disables metrics.
func NewWithOpts[K comparable, V any](
	maxEntries int, metricsCollector MetricsCollector, opts Options[K, V],
) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("max entries should be > 0, got %d", maxEntries)
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("default TTL should be >= 0, got %s", opts.DefaultTTL)
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}

	return &LRUCache[K, V]{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[K]*list.Element),
		metrics:    metricsCollector,
		defaultTTL: opts.DefaultTTL,
		onEvict:    opts.OnEvict,
	}, nil
}

// Get returns the value stored under the key, if any.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	value, ok, expired := c.lookup(key)
	c.mu.Unlock()
	c.notifyEvicted(expired)
	return value, ok
}

// Add stores the value under the key with the default TTL.
// The least recently used entry is evicted when the cache is full.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL stores the value under the key with the given TTL.
// The least recently used entry is evicted when the cache is full.
// Expired entries linger until the next access or a periodic
// cleanup pass (see RunPeriodicCleanup).
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value = &lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt}
		c.mu.Unlock()
		return
	}
	evicted := c.insert(key, value, expiresAt)
	c.mu.Unlock()
	c.notifyEvicted(evicted)
}

// GetOrAdd returns the value stored under the key,
// storing the one produced by valueProvider on a miss.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	return c.GetOrAddWithTTL(key, valueProvider, c.defaultTTL)
}

// GetOrAddWithTTL returns the value stored under the key,
// storing the one produced by valueProvider with the given TTL on a miss.
// Expired entries linger until the next access or a periodic
// cleanup pass (see RunPeriodicCleanup).
func (c *LRUCache[K, V]) GetOrAddWithTTL(key K, valueProvider func() V, ttl time.Duration) (value V, exists bool) {
	c.mu.Lock()
	value, exists, expired := c.lookup(key)
	if exists {
		c.mu.Unlock()
		return value, true
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	value = valueProvider()
	evicted := c.insert(key, value, expiresAt)
	c.mu.Unlock()
	c.notifyEvicted(expired, evicted)
	return value, false
}

// GetOrAddCall returns the cached value for the key, building it with fn on a miss.
// Unlike GetOrAdd, fn is executed without the cache lock held,
// and concurrent callers with the same key share a single fn call and its result.
// Nothing is cached and the error is returned to all sharing callers when fn fails.
func (c *LRUCache[K, V]) GetOrAddCall(key K, fn func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	return c.builds.Do(key, func() (V, error) {
		// The value may have been built and cached while this caller was entering the group.
		if value, ok := c.peek(key); ok {
			return value, nil
		}
		value, err := fn()
		if err != nil {
			var zero V
			return zero, err
		}
		c.Add(key, value)
		return value, nil
	})
}

// Remove removes the entry stored under the key,
// reporting whether there was one.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	ent := c.unlink(el)
	c.metrics.SetAmount(len(c.entries))
	c.mu.Unlock()
	c.notifyEvicted(ent)
	return true
}

// Purge drops all entries at once.
// The capacity stays as is, and no metric except the entries gauge is reset:
// purged entries are not counted as evictions. OnEvict is called for each of them.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	var removed []*lruEntry[K, V]
	if c.onEvict != nil {
		removed = make([]*lruEntry[K, V], 0, len(c.entries))
		for _, el := range c.entries {
			removed = append(removed, el.Value.(*lruEntry[K, V]))
		}
	}
	c.metrics.SetAmount(0)
	c.entries = make(map[K]*list.Element)
	c.order.Init()
	c.mu.Unlock()
	c.notifyEvicted(removed...)
}

// Resize sets a new capacity, evicting the least recently used entries
// when the cache currently holds more, and returns how many were evicted.
func (c *LRUCache[K, V]) Resize(size int) (evicted int) {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	c.maxEntries = size
	evicted = len(c.entries) - size
	if evicted <= 0 {
		c.mu.Unlock()
		return 0
	}
	removed := make([]*lruEntry[K, V], 0, evicted)
	for i := 0; i < evicted; i++ {
		if ent := c.dropOldest(); ent != nil {
			removed = append(removed, ent)
		}
	}
	c.metrics.SetAmount(len(c.entries))
	c.metrics.AddEvictions(evicted)
	c.mu.Unlock()
	c.notifyEvicted(removed...)
	return evicted
}

// Len reports how many entries the cache currently holds.
func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// lookup must be called with the lock held.
// An expired entry is removed and returned so that the caller
// can run the eviction callback after releasing the lock.
func (c *LRUCache[K, V]) lookup(key K) (value V, ok bool, expired *lruEntry[K, V]) {
	el, hit := c.entries[key]
	if !hit {
		c.metrics.IncMisses()
		return value, false, nil
	}
	ent := el.Value.(*lruEntry[K, V])
	if !ent.expiresAt.IsZero() && ent.expiresAt.Before(time.Now()) {
		c.unlink(el)
		c.metrics.SetAmount(len(c.entries))
		c.metrics.IncMisses()
		return value, false, ent
	}
	c.order.MoveToFront(el)
	c.metrics.IncHits()
	return ent.value, true, nil
}

// peek returns the unexpired value without touching the LRU order or metrics.
func (c *LRUCache[K, V]) peek(key K) (value V, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, hit := c.entries[key]
	if !hit {
		return value, false
	}
	ent := el.Value.(*lruEntry[K, V])
	if !ent.expiresAt.IsZero() && ent.expiresAt.Before(time.Now()) {
		return value, false
	}
	return ent.value, true
}

func (c *LRUCache[K, V]) insert(key K, value V, expiresAt time.Time) *lruEntry[K, V] {
	c.entries[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	if len(c.entries) <= c.maxEntries {
		c.metrics.SetAmount(len(c.entries))
		return nil
	}
	ent := c.dropOldest()
	if ent != nil {
		c.metrics.AddEvictions(1)
	}
	return ent
}

func (c *LRUCache[K, V]) unlink(el *list.Element) *lruEntry[K, V] {
	c.order.Remove(el)
	ent := el.Value.(*lruEntry[K, V])
	delete(c.entries, ent.key)
	return ent
}

func (c *LRUCache[K, V]) dropOldest() *lruEntry[K, V] {
	el := c.order.Back()
	if el == nil {
		return nil
	}
	return c.unlink(el)
}

func (c *LRUCache[K, V]) notifyEvicted(entries ...*lruEntry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, ent := range entries {
		if ent != nil {
			c.onEvict(ent.key, ent.value)
		}
	}
}

func (c *LRUCache[K, V]) removeExpired(now time.Time) []*lruEntry[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []*lruEntry[K, V]
	for key, el := range c.entries {
		ent := el.Value.(*lruEntry[K, V])
		if !ent.expiresAt.IsZero() && ent.expiresAt.Before(now) {
			c.order.Remove(el)
			delete(c.entries, key)
			if c.onEvict != nil {
				removed = append(removed, ent)
			}
		}
	}
	c.metrics.SetAmount(len(c.entries))
	return removed
}

// RunPeriodicCleanup removes expired entries every cleanupInterval until the context is done.
// Entries with no expiration are left alone. Run it in a dedicated goroutine.
func (c *LRUCache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.notifyEvicted(c.removeExpired(time.Now())...)
		}
	}
}

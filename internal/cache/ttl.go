// Package cache holds in-process TTL caches for driver positions and routes.
package cache

import (
	"sync"
	"time"
)

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// RealClock is the default clock.
type RealClock struct{}

// Now returns current time.
func (RealClock) Now() time.Time { return time.Now() }

// TTL is a lock-guarded map whose entries expire after a per-entry deadline.
// Expired entries are dropped lazily on read and by a sweep that runs at most
// once per sweepEvery on writes.
type TTL[K comparable, V any] struct {
	clock      Clock
	sweepEvery time.Duration
	maxEntries int

	mu        sync.RWMutex
	items     map[K]entry[V]
	lastSweep time.Time
}

type entry[V any] struct {
	value    V
	deadline time.Time
}

// NewTTL creates a cache. maxEntries <= 0 means unbounded.
func NewTTL[K comparable, V any](clock Clock, sweepEvery time.Duration, maxEntries int) *TTL[K, V] {
	if clock == nil {
		clock = RealClock{}
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &TTL[K, V]{
		clock:      clock,
		sweepEvery: sweepEvery,
		maxEntries: maxEntries,
		items:      make(map[K]entry[V]),
	}
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || !now.Before(e.deadline) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value for ttl. A non-positive ttl removes the key.
func (c *TTL[K, V]) Set(key K, value V, ttl time.Duration) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return
	}
	c.sweepLocked(now)

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		return
	}
	c.items[key] = entry[V]{value: value, deadline: now.Add(ttl)}
}

// GetOrCreate returns the live value for key, creating it with newValue when
// absent or expired, and extends its deadline to now+ttl. It reports false
// when key is new and the cache is full.
func (c *TTL[K, V]) GetOrCreate(key K, ttl time.Duration, newValue func() V) (V, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)

	e, ok := c.items[key]
	if !ok || !now.Before(e.deadline) {
		if !ok && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
			var zero V
			return zero, false
		}
		e = entry[V]{value: newValue()}
	}
	e.deadline = now.Add(ttl)
	c.items[key] = e
	return e.value, true
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *TTL[K, V]) sweepLocked(now time.Time) {
	if !c.lastSweep.IsZero() && now.Sub(c.lastSweep) < c.sweepEvery {
		return
	}
	c.lastSweep = now
	for k, e := range c.items {
		if !now.Before(e.deadline) {
			delete(c.items, k)
		}
	}
}

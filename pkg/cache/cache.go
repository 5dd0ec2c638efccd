// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache holds expensive derived values, such as cipher keys, by a
// string fingerprint. It is bounded, optionally forgets idle entries, and
// computes a missing value once however many callers ask for it.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/utils"
)

type entry[V any] struct {
	value      V
	lastAccess atomic.Int64 // Unix nano timestamp
}

// Cache stores values by string key.
//
//	keys := cache.New[*Keys](cache.WithMaxSize[*Keys](64))
//	k, err := keys.GetOrLoad(fingerprint, derive)
type Cache[V any] struct {
	store *utils.ShardedMap[*entry[V]]

	// held while a missing value is computed
	loadMu sync.Mutex

	maxSize int           // 0 = unbounded
	expiry  time.Duration // 0 = never
	now     func() time.Time
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithMaxSize bounds the number of entries. When full, the least recently
// used entry is evicted.
func WithMaxSize[V any](maxSize int) Option[V] {
	return func(c *Cache[V]) {
		c.maxSize = maxSize
	}
}

// WithExpiry forgets entries unused for d. Expired entries are dropped when
// next looked up.
func WithExpiry[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) {
		c.expiry = d
	}
}

// New creates a Cache
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		store: utils.NewShardedMap[*entry[V]](),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.store.Load(key)
	if !ok {
		return zero, false
	}

	now := c.now().UnixNano()
	if c.expiry > 0 && now-e.lastAccess.Load() > c.expiry.Nanoseconds() {
		c.store.Delete(key)
		return zero, false
	}
	e.lastAccess.Store(now)
	return e.value, true
}

// GetOrLoad returns the value for key, calling load on a miss and keeping
// what it returns. Concurrent misses call load once. A load error is
// returned and nothing is kept.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Set adds or replaces a value
func (c *Cache[V]) Set(key string, value V) {
	e := &entry[V]{value: value}
	e.lastAccess.Store(c.now().UnixNano())

	if c.maxSize > 0 {
		if _, exists := c.store.Load(key); !exists && c.store.Len() >= c.maxSize {
			c.evictOldest()
		}
	}
	c.store.Store(key, e)
}

func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldestTime int64
	found := false

	c.store.Range(func(k string, e *entry[V]) bool {
		if t := e.lastAccess.Load(); !found || t < oldestTime {
			oldestKey, oldestTime, found = k, t, true
		}
		return true
	})
	if found {
		c.store.Delete(oldestKey)
	}
}

// Delete removes a key
func (c *Cache[V]) Delete(key string) {
	c.store.Delete(key)
}

// Len returns the number of entries, counting expired ones not yet looked up
func (c *Cache[V]) Len() int {
	return c.store.Len()
}

// Clear removes all entries
func (c *Cache[V]) Clear() {
	c.store.Clear()
}

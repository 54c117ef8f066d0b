// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package expiring provides a bounded key/value memory whose entries lapse a
fixed duration after they were last touched.

It backs two short-lived memories: the per-IP rate limiter buckets and the
ingestion payload hashes used to drop replays that arrive within minutes of
each other. Because every entry shares one TTL, the least recently touched
entry is always the next to expire, so a single recency list serves both
eviction and sweeping.
*/
package expiring

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[K]*list.Element
	recency  *list.List
	now      func() time.Time
}

// Option customizes a [Cache].
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache holding at most capacity entries for ttl each.
// A non-positive capacity means unbounded.
func New[K comparable, V any](ttl time.Duration, capacity int, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, apply := range opts {
		apply(&o)
	}
	return &Cache[K, V]{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[K]*list.Element),
		recency:  list.New(),
		now:      o.now,
	}
}

// Get returns the live value stored under key without refreshing it.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.live(key)
	if !ok {
		var zero V
		return zero, false
	}
	return element.Value.(*entry[K, V]).value, true
}

// Set stores value under key and restarts its TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value)
}

// GetOrSet returns the live value under key, refreshing its TTL, or stores
// the result of create. The boolean reports whether the value already existed.
func (c *Cache[K, V]) GetOrSet(key K, create func() V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.live(key); ok {
		item := element.Value.(*entry[K, V])
		item.expiresAt = c.now().Add(c.ttl)
		c.recency.MoveToBack(element)
		return item.value, true
	}

	value := create()
	c.store(key, value)
	return value, false
}

// Delete forgets key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.entries[key]; ok {
		c.remove(element)
	}
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for front := c.recency.Front(); front != nil; front = c.recency.Front() {
		if now.Before(front.Value.(*entry[K, V]).expiresAt) {
			break
		}
		c.remove(front)
		removed++
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (c *Cache[K, V]) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cache[K, V]) live(key K) (*list.Element, bool) {
	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(element.Value.(*entry[K, V]).expiresAt) {
		c.remove(element)
		return nil, false
	}
	return element, true
}

func (c *Cache[K, V]) store(key K, value V) {
	expiresAt := c.now().Add(c.ttl)
	if element, ok := c.entries[key]; ok {
		item := element.Value.(*entry[K, V])
		item.value = value
		item.expiresAt = expiresAt
		c.recency.MoveToBack(element)
		return
	}

	c.entries[key] = c.recency.PushBack(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	for c.capacity > 0 && c.recency.Len() > c.capacity {
		c.remove(c.recency.Front())
	}
}

func (c *Cache[K, V]) remove(element *list.Element) {
	c.recency.Remove(element)
	delete(c.entries, element.Value.(*entry[K, V]).key)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// Key identifies a check result: the language plus a digest of the
// exact text sent to the backend. Two documents containing the same
// paragraph share the entry.
type Key struct {
	Language string
	Sum      [sha256.Size]byte
}

// NewKey digests text under the given language.
func NewKey(language, text string) Key {
	return Key{Language: language, Sum: sha256.Sum256([]byte(text))}
}

// String renders the key for use as a singleflight group key. The
// full digest goes in: a truncated one could attach a caller to a
// flight for different text.
func (k Key) String() string {
	return k.Language + ":" + hex.EncodeToString(k.Sum[:])
}

// ResultCache is a thread-safe LRU over check results with entry
// pinning. Pinned entries back currently published diagnostics and
// are never evicted; eviction skips them and removes the oldest
// unpinned entry instead.
//
// Thread Safety: all methods are safe for concurrent use.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	items    map[Key]*list.Element
	order    *list.List // Front = most recent, Back = least recent
	pins     map[Key]int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key    Key
	issues []Issue
}

// NewResultCache creates a cache holding at most capacity unpinned
// entries. Pinned entries may push the total above capacity; they
// are bounded by the number of open documents.
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &ResultCache{
		capacity: capacity,
		items:    make(map[Key]*list.Element, capacity),
		order:    list.New(),
		pins:     make(map[Key]int),
	}
}

// Get returns the cached issues for key, moving the entry to the
// front. The returned slice is shared; callers must not mutate it.
func (c *ResultCache) Get(key Key) ([]Issue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*cacheEntry).issues, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores issues under key, evicting the least recently used
// unpinned entry if at capacity.
func (c *ResultCache) Set(key Key, issues []Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).issues = issues
		return
	}
	if c.order.Len() >= c.capacity {
		c.evictOldestUnpinned()
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, issues: issues})
}

// Retain pins key so its entry survives eviction. Pins are counted;
// every Retain needs a matching Release. Pinning a key with no cached
// entry is fine: the pin applies if the entry appears later.
func (c *ResultCache) Retain(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[key]++
}

// Release undoes one Retain.
func (c *ResultCache) Release(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.pins[key]; n > 1 {
		c.pins[key] = n - 1
	} else {
		delete(c.pins, key)
	}
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit/miss/eviction counters.
func (c *ResultCache) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

// evictOldestUnpinned removes the least recently used entry that is
// not pinned. If everything is pinned nothing is evicted; the cache
// temporarily exceeds capacity rather than dropping a published
// result. Caller must hold the lock.
func (c *ResultCache) evictOldestUnpinned() {
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*cacheEntry)
		if c.pins[entry.key] > 0 {
			continue
		}
		c.order.Remove(elem)
		delete(c.items, entry.key)
		c.evictions.Add(1)
		return
	}
}

// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// lruCache is a fixed-capacity metadata cache with least-recently-used
// eviction, fronting
// the layer snapshot map. A size of 0 disables caching entirely (get
// always misses, put/invalidate are no-ops), which is the right choice for
// a store expected to hold only a handful of layers.
type lruCache struct {
	size int

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key   string
	layer *Layer
}

func newLRUCache(size int) *lruCache {
	if size <= 0 {
		return &lruCache{size: 0}
	}
	return &lruCache{
		size:  size,
		ll:    list.New(),
		items: make(map[string]*list.Element, size),
	}
}

func (c *lruCache) get(key string) (*Layer, bool) {
	if c.size == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*cacheEntry).layer, true
}

func (c *lruCache) put(key string, l *Layer) {
	if c.size == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).layer = l
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, layer: l})
	c.items[key] = el
	if c.ll.Len() > c.size {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *lruCache) invalidate(key string) {
	if c.size == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *lruCache) counts() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

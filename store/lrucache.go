// Package store implements the delta-chain object engine described in
// spec.md §4.1/§4.2/§6.1: ContentStore and RosterStore over a shared
// base/delta reconstruction algorithm, backed by a real SQLite schema,
// plus the write-back caches (vcache, roster_cache, delayed_files) that
// sit in front of it.
package store

import (
	"container/list"
)

// SizeFn reports the abstract size an entry contributes to a cache's
// size budget.
type SizeFn[V any] func(v V) uint64

// Writeback is consulted before a dirty entry is evicted; it must
// persist the entry so the eviction is safe. A cache built with a nil
// Writeback (see NewLRUCache) treats every entry as clean and never
// calls it.
type Writeback[K comparable, V any] func(key K, value V) error

// LRUCache is a bounded key/value cache with least-recently-used
// eviction plus an optional dirty set and write-back manager, grounded
// on the teacher's size-bounded caching idiom generalized from the
// Monotone C++ original's LRUWritebackCache template (original_source's
// lru_writeback_cache.hh): a doubly linked list for recency plus an
// index map, with dirty entries flushed through a Manager before they
// can be discarded.
type LRUCache[K comparable, V any] struct {
	maxSize  uint64
	currSize uint64
	sizeFn   SizeFn[V]
	writeback Writeback[K, V]

	entries *list.List // list of *cacheEntry[K,V], front = most recently used
	index   map[K]*list.Element
	dirty   map[K]bool
}

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache creates a pure LRU cache (never dirty, nothing to write
// back) bounded by maxSize as measured by sizeFn.
func NewLRUCache[K comparable, V any](maxSize uint64, sizeFn SizeFn[V]) *LRUCache[K, V] {
	return NewLRUWritebackCache[K, V](maxSize, sizeFn, nil)
}

// NewLRUWritebackCache creates an LRU cache whose dirty entries are
// flushed via writeback before eviction.
func NewLRUWritebackCache[K comparable, V any](maxSize uint64, sizeFn SizeFn[V], writeback Writeback[K, V]) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		maxSize:   maxSize,
		sizeFn:    sizeFn,
		writeback: writeback,
		entries:   list.New(),
		index:     map[K]*list.Element{},
		dirty:     map[K]bool{},
	}
}

// Get returns the cached value for key, promoting it to most-recently-used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	var zero V
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	c.entries.MoveToFront(el)
	return el.Value.(*cacheEntry[K, V]).value, true
}

// Put inserts or replaces key's value as clean, evicting LRU entries as
// needed to respect maxSize.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.insert(key, value, false)
}

// PutDirty inserts or replaces key's value and marks it dirty: it will
// be passed to the write-back manager before it can be evicted.
func (c *LRUCache[K, V]) PutDirty(key K, value V) {
	c.insert(key, value, true)
}

func (c *LRUCache[K, V]) insert(key K, value V, markDirty bool) {
	if el, ok := c.index[key]; ok {
		old := el.Value.(*cacheEntry[K, V])
		c.currSize -= c.sizeFn(old.value)
		el.Value = &cacheEntry[K, V]{key: key, value: value}
		c.entries.MoveToFront(el)
	} else {
		el := c.entries.PushFront(&cacheEntry[K, V]{key: key, value: value})
		c.index[key] = el
	}
	c.currSize += c.sizeFn(value)
	if markDirty {
		c.dirty[key] = true
	} else {
		delete(c.dirty, key)
	}
	c.evictIfNeeded()
}

// MarkClean clears the dirty bit for key (the caller has flushed it
// through some other path, e.g. an explicit transaction commit).
func (c *LRUCache[K, V]) MarkClean(key K) { delete(c.dirty, key) }

// IsDirty reports whether key's entry is currently dirty.
func (c *LRUCache[K, V]) IsDirty(key K) bool { return c.dirty[key] }

// DirtyKeys returns all currently dirty keys, in no particular order.
func (c *LRUCache[K, V]) DirtyKeys() []K {
	out := make([]K, 0, len(c.dirty))
	for k := range c.dirty {
		out = append(out, k)
	}
	return out
}

// FlushAll writes back every dirty entry via the configured Writeback
// and clears the dirty set — the transaction-commit / checkpoint path.
func (c *LRUCache[K, V]) FlushAll() error {
	for key := range c.dirty {
		el := c.index[key]
		entry := el.Value.(*cacheEntry[K, V])
		if c.writeback != nil {
			if err := c.writeback(entry.key, entry.value); err != nil {
				return err
			}
		}
		delete(c.dirty, key)
	}
	return nil
}

// DiscardAll drops every dirty entry without writing it back — the
// transaction-rollback path.
func (c *LRUCache[K, V]) DiscardAll() {
	for key := range c.dirty {
		c.evict(key)
	}
	c.dirty = map[K]bool{}
}

func (c *LRUCache[K, V]) evictIfNeeded() {
	for c.currSize > c.maxSize && c.entries.Len() > 0 {
		back := c.entries.Back()
		entry := back.Value.(*cacheEntry[K, V])
		if c.dirty[entry.key] {
			if c.writeback != nil {
				if err := c.writeback(entry.key, entry.value); err != nil {
					// a write-back failure must not silently lose data:
					// leave the dirty entry pinned and stop evicting.
					return
				}
			}
			delete(c.dirty, entry.key)
		}
		c.entries.Remove(back)
		delete(c.index, entry.key)
		c.currSize -= c.sizeFn(entry.value)
	}
}

func (c *LRUCache[K, V]) evict(key K) {
	el, ok := c.index[key]
	if !ok {
		return
	}
	entry := el.Value.(*cacheEntry[K, V])
	c.entries.Remove(el)
	delete(c.index, key)
	delete(c.dirty, key)
	c.currSize -= c.sizeFn(entry.value)
}

// Len returns the number of entries currently cached.
func (c *LRUCache[K, V]) Len() int { return c.entries.Len() }

// Package cache provides the in-process cache backing registry lookups.
//
// The cache is scoped to one engine run: it is created empty at engine start,
// handed to the registry client explicitly, and discarded at exit. Nothing
// persists between invocations.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry represents a cached value with metadata.
type Entry struct {
	Value  []byte
	Expiry time.Time
	Size   int
}

// IsExpired checks if the entry has exceeded its TTL.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expiry)
}

// MemoryCache is an LRU cache with TTL support, safe for concurrent use.
type MemoryCache struct {
	maxEntries int
	maxSize    int64 // maximum total bytes

	mu        sync.RWMutex
	entries   map[string]*list.Element
	lruList   *list.List
	totalSize int64
}

// lruEntry wraps cache key and entry for the LRU list.
type lruEntry struct {
	key   string
	entry *Entry
}

// NewMemoryCache creates a new LRU memory cache.
func NewMemoryCache(maxEntries int, maxSize int64) *MemoryCache {
	return &MemoryCache{
		maxEntries: maxEntries,
		maxSize:    maxSize,
		entries:    make(map[string]*list.Element),
		lruList:    list.New(),
	}
}

// Get retrieves a value from the cache.
// Returns (value, true) if found and not expired, (nil, false) otherwise.
func (mc *MemoryCache) Get(key string) ([]byte, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	elem, ok := mc.entries[key]
	if !ok {
		return nil, false
	}

	lruEnt := elem.Value.(*lruEntry)

	if lruEnt.entry.IsExpired() {
		mc.removeElement(elem)
		return nil, false
	}

	mc.lruList.MoveToFront(elem)

	// Return a copy to prevent external modification.
	value := make([]byte, len(lruEnt.entry.Value))
	copy(value, lruEnt.entry.Value)

	return value, true
}

// Set adds or updates a value in the cache.
func (mc *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	expiry := time.Now().Add(ttl)

	if elem, ok := mc.entries[key]; ok {
		lruEnt := elem.Value.(*lruEntry)
		oldSize := lruEnt.entry.Size

		lruEnt.entry.Value = value
		lruEnt.entry.Expiry = expiry
		lruEnt.entry.Size = len(value)

		mc.totalSize = mc.totalSize - int64(oldSize) + int64(len(value))
		mc.lruList.MoveToFront(elem)
	} else {
		lruEnt := &lruEntry{
			key: key,
			entry: &Entry{
				Value:  value,
				Expiry: expiry,
				Size:   len(value),
			},
		}

		elem := mc.lruList.PushFront(lruEnt)
		mc.entries[key] = elem
		mc.totalSize += int64(len(value))
	}

	mc.evictIfNeeded()
}

// Delete removes a key from the cache.
func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if elem, ok := mc.entries[key]; ok {
		mc.removeElement(elem)
	}
}

// Clear removes all entries from the cache.
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*list.Element)
	mc.lruList = list.New()
	mc.totalSize = 0
}

// Stats returns cache statistics.
func (mc *MemoryCache) Stats() Stats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return Stats{
		Entries:   len(mc.entries),
		SizeBytes: mc.totalSize,
	}
}

// removeElement removes an element from the cache (must hold lock).
func (mc *MemoryCache) removeElement(elem *list.Element) {
	lruEnt := elem.Value.(*lruEntry)
	delete(mc.entries, lruEnt.key)
	mc.lruList.Remove(elem)
	mc.totalSize -= int64(lruEnt.entry.Size)
}

// evictIfNeeded evicts least recently used entries until within limits.
func (mc *MemoryCache) evictIfNeeded() {
	for mc.lruList.Len() > mc.maxEntries {
		elem := mc.lruList.Back()
		if elem != nil {
			mc.removeElement(elem)
		}
	}

	for mc.totalSize > mc.maxSize && mc.lruList.Len() > 0 {
		elem := mc.lruList.Back()
		if elem != nil {
			mc.removeElement(elem)
		}
	}
}

// Stats holds cache statistics.
type Stats struct {
	Entries   int
	SizeBytes int64
}

// Package cache implements the AST cache (spec component C6): a
// size-and-count-bounded store keyed by absolute path, valid only while
// a file's on-disk size, mtime, and content hash all match what was
// recorded at insertion time.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dlogcover/dlogcover/internal/astmodel"
	"github.com/dlogcover/dlogcover/internal/debug"
)

// Default capacity limits, overridable via Config.
const (
	DefaultMaxEntries   = 2000
	DefaultMaxBytes     = 256 << 20 // 256 MiB
)

// entry is a single cached translation unit plus the validity triple
// and bookkeeping the eviction policy needs.
type entry struct {
	path         string
	size         int64
	modTime      time.Time
	contentHash  uint64
	tree         *astmodel.Node
	memory       int64
	insertedAt   time.Time
	lastAccessAt time.Time
	accessCount  int64
}

// Config bounds the cache's two capacity dimensions.
type Config struct {
	MaxEntries int
	MaxBytes   int64
}

func (c Config) normalized() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	return c
}

// Cache is the AST cache. A single mutex guards the map and the LRU
// order list; hit/miss/eviction counters are kept as atomics, so they are
// updated and read without the lock (Stats() takes it only to read the
// entry count and byte total).
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string // most-recently-used at the end

	cfg Config

	totalBytes int64

	hits      int64
	misses    int64
	evictions int64
}

// New constructs an empty cache with the given capacity bounds.
func New(cfg Config) *Cache {
	cfg = cfg.normalized()
	return &Cache{
		entries: make(map[string]*entry),
		cfg:     cfg,
	}
}

// Key is the validity triple a caller must supply to Get/Put: the
// on-disk size and mtime of the file, used to short-circuit hashing when
// they already disagree with what's stored.
type Key struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Get returns a deep clone of the cached tree for key if an entry exists
// and its stored size/mtime/content-hash all still match. A clone is
// returned (never the stored tree) so concurrent consumers can't
// mutate each other's view of a shared cache entry.
func (c *Cache) Get(key Key, content []byte) (*astmodel.Node, bool) {
	c.mu.Lock()
	e, ok := c.entries[key.Path]
	if !ok {
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if e.size != key.Size || !e.modTime.Equal(key.ModTime) {
		c.removeLocked(key.Path)
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		debug.LogCache("invalidated %s: size/mtime mismatch", key.Path)
		return nil, false
	}

	hash := xxhash.Sum64(content)
	if hash != e.contentHash {
		c.removeLocked(key.Path)
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		debug.LogCache("invalidated %s: content hash mismatch", key.Path)
		return nil, false
	}

	e.accessCount++
	e.lastAccessAt = time.Now()
	c.touchLocked(key.Path)
	clone := e.tree.Clone()
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return clone, true
}

// Put inserts or replaces the entry for key, evicting under capacity
// pressure: first by LRU until under the count cap, then by largest
// memory footprint until under the byte cap.
func (c *Cache) Put(key Key, content []byte, tree *astmodel.Node) {
	mem := tree.EstimatedMemory()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key.Path]; ok {
		c.totalBytes -= old.memory
		c.removeFromOrderLocked(key.Path)
	}

	e := &entry{
		path:         key.Path,
		size:         key.Size,
		modTime:      key.ModTime,
		contentHash:  xxhash.Sum64(content),
		tree:         tree,
		memory:       mem,
		insertedAt:   time.Now(),
		lastAccessAt: time.Now(),
		accessCount:  0,
	}
	c.entries[key.Path] = e
	c.order = append(c.order, key.Path)
	c.totalBytes += mem

	c.evictLocked()
}

// evictLocked applies the two-phase eviction policy. Caller holds c.mu.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.cfg.MaxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.removeLocked(oldest)
		atomic.AddInt64(&c.evictions, 1)
		debug.LogCache("evicted %s by LRU count cap", oldest)
	}

	for c.totalBytes > c.cfg.MaxBytes && len(c.entries) > 0 {
		largestPath := c.largestEntryLocked()
		if largestPath == "" {
			break
		}
		c.removeLocked(largestPath)
		atomic.AddInt64(&c.evictions, 1)
		debug.LogCache("evicted %s by byte cap", largestPath)
	}
}

func (c *Cache) largestEntryLocked() string {
	var path string
	var largest int64 = -1
	for p, e := range c.entries {
		if e.memory > largest {
			largest = e.memory
			path = p
		}
	}
	return path
}

// removeLocked deletes path from both the map and the LRU order. Caller
// holds c.mu. Safe to call for inconsistent state: if the map has no
// entry for path, it is treated as already absent.
func (c *Cache) removeLocked(path string) {
	if e, ok := c.entries[path]; ok {
		c.totalBytes -= e.memory
		delete(c.entries, path)
	}
	c.removeFromOrderLocked(path)
}

func (c *Cache) removeFromOrderLocked(path string) {
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) touchLocked(path string) {
	c.removeFromOrderLocked(path)
	c.order = append(c.order, path)
}

// Invalidate drops the entry for path, if any.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path)
}

// Flush drops every entry and resets total-bytes bookkeeping; lookups
// after it report misses. Nothing inside the cache calls it: the cache
// runs no consistency check of its own. Cache operations never surface
// errors to callers.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = nil
	c.totalBytes = 0
}

// Stats reports the cache's running counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Entries    int
	TotalBytes int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	totalBytes := c.totalBytes
	c.mu.Unlock()

	return Stats{
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Evictions:  atomic.LoadInt64(&c.evictions),
		Entries:    entries,
		TotalBytes: totalBytes,
	}
}

package storage

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// QueryCache is an LRU cache of query results with a per-entry TTL
type QueryCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[uint64]*cacheEntry
	lru      *list.List
}

type cacheEntry struct {
	key       uint64
	result    *types.QueryResult
	timestamp time.Time
	element   *list.Element
}

// NewQueryCache creates a cache holding at most capacity results
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[uint64]*cacheEntry),
		lru:      list.New(),
	}
}

// Get returns a cached result that has not expired
func (qc *QueryCache) Get(req *types.QueryRequest) (*types.QueryResult, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	key := cacheKey(req)
	entry, exists := qc.cache[key]
	if !exists {
		return nil, false
	}

	if time.Since(entry.timestamp) > qc.ttl {
		qc.removeLocked(key)
		return nil, false
	}

	qc.lru.MoveToFront(entry.element)
	return entry.result, true
}

// Put stores a result, evicting the least recently used entry when full
func (qc *QueryCache) Put(req *types.QueryRequest, result *types.QueryResult) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	key := cacheKey(req)
	if entry, exists := qc.cache[key]; exists {
		entry.result = result
		entry.timestamp = time.Now()
		qc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:       key,
		result:    result,
		timestamp: time.Now(),
	}
	entry.element = qc.lru.PushFront(entry)
	qc.cache[key] = entry

	for qc.lru.Len() > qc.capacity {
		oldest := qc.lru.Back()
		qc.removeLocked(oldest.Value.(*cacheEntry).key)
	}
}

func (qc *QueryCache) removeLocked(key uint64) {
	if entry, exists := qc.cache[key]; exists {
		qc.lru.Remove(entry.element)
		delete(qc.cache, key)
	}
}

// Clear drops every entry
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.cache = make(map[uint64]*cacheEntry)
	qc.lru.Init()
}

// Size returns the number of cached entries
func (qc *QueryCache) Size() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.cache)
}

// Stats returns cache statistics
func (qc *QueryCache) Stats() CacheStats {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	expired := 0
	for _, entry := range qc.cache {
		if time.Since(entry.timestamp) > qc.ttl {
			expired++
		}
	}

	return CacheStats{
		Size:     len(qc.cache),
		Capacity: qc.capacity,
		Expired:  expired,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int
	Capacity int
	Expired  int
	Hits     uint64
	Misses   uint64
}

// cacheKey hashes the fields that determine a query's result
func cacheKey(req *types.QueryRequest) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s\x00%s\x00%g\x00%g", req.TenantID, req.Query, req.StartTime, req.EndTime))
}

// CachedStorage wraps a Storage with a query cache. Writes invalidate the
// whole cache.
type CachedStorage struct {
	storage Storage
	cache   *QueryCache
	hits    atomic.Uint64
	misses  atomic.Uint64
}

var _ Storage = (*CachedStorage)(nil)

// NewCachedStorage creates a cached storage wrapper
func NewCachedStorage(storage Storage, cacheCapacity int, cacheTTL time.Duration) *CachedStorage {
	return &CachedStorage{
		storage: storage,
		cache:   NewQueryCache(cacheCapacity, cacheTTL),
	}
}

// Write implements Storage
func (cs *CachedStorage) Write(ctx context.Context, req *types.WriteRequest) error {
	defer cs.cache.Clear()
	return cs.storage.Write(ctx, req)
}

// Query implements Storage, serving repeated queries from the cache.
// Failed queries are not cached.
func (cs *CachedStorage) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	if result, ok := cs.cache.Get(req); ok {
		cs.hits.Add(1)
		return result, nil
	}
	cs.misses.Add(1)

	result, err := cs.storage.Query(ctx, req)
	if err != nil {
		return result, err
	}

	cs.cache.Put(req, result)
	return result, nil
}

// LabelValues implements Storage
func (cs *CachedStorage) LabelValues(ctx context.Context, label string) ([]string, error) {
	return cs.storage.LabelValues(ctx, label)
}

// Close closes the underlying storage
func (cs *CachedStorage) Close() error {
	cs.cache.Clear()
	return cs.storage.Close()
}

// CacheStats returns cache statistics including hit counters
func (cs *CachedStorage) CacheStats() CacheStats {
	stats := cs.cache.Stats()
	stats.Hits = cs.hits.Load()
	stats.Misses = cs.misses.Load()
	return stats
}

// CacheHitRate returns the cache hit rate as a percentage
func (cs *CachedStorage) CacheHitRate() float64 {
	hits, misses := cs.hits.Load(), cs.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

func TestQueryCache(t *testing.T) {
	cache := NewQueryCache(100, time.Minute)

	req := &types.QueryRequest{TenantID: "runs", Query: "correctness", StartTime: 0, EndTime: 600}

	if _, ok := cache.Get(req); ok {
		t.Error("Expected cache miss, got hit")
	}

	result := &types.QueryResult{
		Series: []types.Series{ratioSeries("fuzz-a", "Valid", types.Sample{Time: 10, Value: 0.42})},
	}
	cache.Put(req, result)

	cached, ok := cache.Get(req)
	if !ok {
		t.Fatal("Expected cache hit, got miss")
	}
	if cached.Series[0].Samples[0].Value != 0.42 {
		t.Errorf("Expected value 0.42, got %f", cached.Series[0].Samples[0].Value)
	}

	// A different range is a different entry
	other := *req
	other.EndTime = 601
	if _, ok := cache.Get(&other); ok {
		t.Error("Expected miss for different range")
	}
}

func TestQueryCacheTTL(t *testing.T) {
	cache := NewQueryCache(100, 50*time.Millisecond)

	req := &types.QueryRequest{TenantID: "runs", Query: "correctness"}
	cache.Put(req, &types.QueryResult{Series: []types.Series{}})

	if _, ok := cache.Get(req); !ok {
		t.Error("Expected cache hit")
	}

	time.Sleep(100 * time.Millisecond)

	if stats := cache.Stats(); stats.Expired != 1 {
		t.Errorf("Expected 1 expired entry, got %d", stats.Expired)
	}
	if _, ok := cache.Get(req); ok {
		t.Error("Expected cache miss after TTL expiry")
	}
}

func TestQueryCacheLRUEviction(t *testing.T) {
	cache := NewQueryCache(3, time.Minute)
	result := &types.QueryResult{Series: []types.Series{}}

	reqFor := func(i int) *types.QueryRequest {
		return &types.QueryRequest{TenantID: "runs", Query: fmt.Sprintf(`correctness{run="r%d"}`, i)}
	}

	for i := 0; i < 3; i++ {
		cache.Put(reqFor(i), result)
	}
	// Touch r0 so r1 becomes the oldest
	if _, ok := cache.Get(reqFor(0)); !ok {
		t.Fatal("Expected r0 in cache")
	}
	cache.Put(reqFor(3), result)

	if cache.Size() != 3 {
		t.Errorf("Expected cache size 3, got %d", cache.Size())
	}
	if _, ok := cache.Get(reqFor(1)); ok {
		t.Error("Expected r1 to be evicted")
	}
	for _, i := range []int{0, 2, 3} {
		if _, ok := cache.Get(reqFor(i)); !ok {
			t.Errorf("Expected r%d to be in cache", i)
		}
	}
}

func TestCachedStorage(t *testing.T) {
	store := newTestStorage(t, &Config{InMemory: true, CompressionLevel: 2})
	cached := NewCachedStorage(store, 10, time.Minute)
	defer cached.Close()

	ctx := context.Background()
	write := func(v float64) {
		t.Helper()
		req := &types.WriteRequest{
			TenantID: "runs",
			Series:   []types.Series{ratioSeries("fuzz-a", "Valid", types.Sample{Time: 10, Value: v})},
		}
		if err := cached.Write(ctx, req); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}

	write(0.1)
	req := &types.QueryRequest{TenantID: "runs", Query: "correctness"}
	for i := 0; i < 3; i++ {
		if _, err := cached.Query(ctx, req); err != nil {
			t.Fatalf("Query failed: %v", err)
		}
	}

	stats := cached.CacheStats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if rate := cached.CacheHitRate(); rate < 66 || rate > 67 {
		t.Errorf("Unexpected hit rate %f", rate)
	}

	// Writes invalidate cached results
	write(0.9)
	result, err := cached.Query(ctx, req)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if v := result.Series[0].Samples[0].Value; v != 0.9 {
		t.Errorf("Expected fresh value 0.9, got %f", v)
	}

	values, err := cached.LabelValues(ctx, LabelCategory)
	if err != nil || len(values) != 1 || values[0] != "Valid" {
		t.Errorf("Unexpected category values %v (%v)", values, err)
	}
}

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

func ratioSeries(run, category string, samples ...types.Sample) types.Series {
	return types.Series{
		Metric: types.Metric{
			Name: "correctness",
			Labels: map[string]string{
				LabelRun:      run,
				LabelCategory: category,
			},
		},
		Samples: samples,
	}
}

func newTestStorage(t *testing.T, cfg *Config) Storage {
	t.Helper()
	store, err := NewStorage(cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return store
}

func TestBadgerStorageWriteAndQuery(t *testing.T) {
	store := newTestStorage(t, &Config{Path: t.TempDir(), CompressionLevel: 3})
	defer store.Close()

	ctx := context.Background()
	writeReq := &types.WriteRequest{
		TenantID: "runs",
		Series: []types.Series{
			ratioSeries("fuzz-a", "Valid",
				types.Sample{Time: 0, Value: 0.1},
				types.Sample{Time: 10, Value: 0.25},
				types.Sample{Time: 20.5, Value: 0.4},
				// lands in the second block
				types.Sample{Time: 3700, Value: 0.5},
			),
			ratioSeries("fuzz-a", "Parsing", types.Sample{Time: 0, Value: 0.9}),
		},
	}
	if err := store.Write(ctx, writeReq); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	result, err := store.Query(ctx, &types.QueryRequest{
		TenantID: "runs",
		Query:    `correctness{category="Valid"}`,
	})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(result.Series) != 1 {
		t.Fatalf("Expected 1 series, got %d", len(result.Series))
	}

	want := []types.Sample{{Time: 0, Value: 0.1}, {Time: 10, Value: 0.25}, {Time: 20.5, Value: 0.4}, {Time: 3700, Value: 0.5}}
	got := result.Series[0].Samples
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	// Inclusive range restricted to the first block
	result, err = store.Query(ctx, &types.QueryRequest{
		TenantID:  "runs",
		Query:     `correctness{category="Valid"}`,
		StartTime: 10,
		EndTime:   20.5,
	})
	if err != nil {
		t.Fatalf("Failed to query range: %v", err)
	}
	if n := len(result.Series[0].Samples); n != 2 {
		t.Errorf("Expected 2 samples in range, got %d", n)
	}

	result, err = store.Query(ctx, &types.QueryRequest{TenantID: "runs", Query: `correctness{run="fuzz-a"}`})
	if err != nil {
		t.Fatalf("Failed to query run: %v", err)
	}
	if len(result.Series) != 2 {
		t.Errorf("Expected 2 series for run, got %d", len(result.Series))
	}
}

func TestBadgerStorageQueryNotFound(t *testing.T) {
	store := newTestStorage(t, &Config{InMemory: true, CompressionLevel: 1})
	defer store.Close()

	_, err := store.Query(context.Background(), &types.QueryRequest{TenantID: "runs", Query: "missing"})
	if !errors.Is(err, ErrSeriesNotFound) {
		t.Errorf("Expected ErrSeriesNotFound, got %v", err)
	}

	_, err = store.Query(context.Background(), &types.QueryRequest{TenantID: "runs", Query: `x{bad`})
	if err == nil {
		t.Error("Expected error for malformed selector")
	}
}

func TestBadgerStorageMultiTenant(t *testing.T) {
	store := newTestStorage(t, &Config{Path: t.TempDir(), CompressionLevel: 3})
	defer store.Close()

	ctx := context.Background()
	for _, tenant := range []string{"tenant-a", "tenant-b"} {
		req := &types.WriteRequest{
			TenantID: tenant,
			Series:   []types.Series{ratioSeries(tenant, "Valid", types.Sample{Time: 5, Value: 0.5})},
		}
		if err := store.Write(ctx, req); err != nil {
			t.Fatalf("Failed to write %s: %v", tenant, err)
		}
	}

	resultA, err := store.Query(ctx, &types.QueryRequest{TenantID: "tenant-a", Query: "correctness"})
	if err != nil {
		t.Fatalf("Failed to query tenant A: %v", err)
	}
	if len(resultA.Series) != 1 {
		t.Fatalf("Tenant A: expected 1 series, got %d", len(resultA.Series))
	}
	if run := resultA.Series[0].Metric.Labels[LabelRun]; run != "tenant-a" {
		t.Errorf("Tenant A: expected its own series, got run %q", run)
	}

	values, err := store.LabelValues(ctx, LabelRun)
	if err != nil {
		t.Fatalf("LabelValues failed: %v", err)
	}
	if len(values) != 2 || values[0] != "tenant-a" || values[1] != "tenant-b" {
		t.Errorf("Unexpected run label values: %v", values)
	}
}

func TestBadgerStorageReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newTestStorage(t, &Config{Path: dir, CompressionLevel: 2, EnableWAL: true})
	req := &types.WriteRequest{
		TenantID: "runs",
		Series:   []types.Series{ratioSeries("fuzz-b", "Lexing", types.Sample{Time: 1, Value: 0.3}, types.Sample{Time: 2, Value: 0.35})},
	}
	if err := store.Write(ctx, req); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	store = newTestStorage(t, &Config{Path: dir, CompressionLevel: 2, EnableWAL: true})
	defer store.Close()

	result, err := store.Query(ctx, &types.QueryRequest{TenantID: "runs", Query: `correctness{run="fuzz-b"}`})
	if err != nil {
		t.Fatalf("Failed to query after reopen: %v", err)
	}
	if n := len(result.Series[0].Samples); n != 2 {
		t.Errorf("Expected 2 samples after reopen, got %d", n)
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		query   string
		want    map[string]string
		wantErr bool
	}{
		{query: "", want: nil},
		{query: "correctness", want: map[string]string{LabelName: "correctness"}},
		{query: `correctness{run="a", category="Valid"}`, want: map[string]string{LabelName: "correctness", LabelRun: "a", LabelCategory: "Valid"}},
		{query: `{run="a"}`, want: map[string]string{LabelRun: "a"}},
		{query: `correctness{run="a"`, wantErr: true},
		{query: `correctness{run=a}`, wantErr: true},
		{query: `correctness{run}`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseSelector(tt.query)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSelector(%q): expected error", tt.query)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSelector(%q): %v", tt.query, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ParseSelector(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("ParseSelector(%q)[%s] = %q, want %q", tt.query, k, got[k], v)
			}
		}
	}
}

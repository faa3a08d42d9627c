package storage

import (
	"fmt"
	"testing"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

func runMetric(name, run, category string) types.Metric {
	labels := map[string]string{LabelRun: run}
	if category != "" {
		labels[LabelCategory] = category
	}
	return types.Metric{Name: name, Labels: labels}
}

func TestIndexAddSeries(t *testing.T) {
	idx := NewIndex()
	metric := runMetric("correctness", "fuzz-a", "Valid")

	id, err := idx.AddSeries(&metric)
	if err != nil {
		t.Fatalf("Failed to add series: %v", err)
	}

	id2, err := idx.AddSeries(&metric)
	if err != nil {
		t.Fatalf("Failed to add series again: %v", err)
	}
	if id != id2 {
		t.Errorf("Expected same ID for duplicate series: %d != %d", id, id2)
	}
	if idx.SeriesCount() != 1 {
		t.Errorf("Expected 1 series, got %d", idx.SeriesCount())
	}

	// Later changes to the caller's labels must not leak into the index
	metric.Labels[LabelRun] = "other"
	meta, _ := idx.GetSeries(id)
	if meta.Metric.Labels[LabelRun] != "fuzz-a" {
		t.Errorf("Index shares label map with caller")
	}

	if _, err := idx.AddSeries(&types.Metric{}); err == nil {
		t.Error("Expected error for unnamed metric")
	}
}

func TestIndexFindSeries(t *testing.T) {
	idx := NewIndex()
	metrics := []types.Metric{
		runMetric("correctness", "fuzz-a", "Valid"),
		runMetric("correctness", "fuzz-a", "Parsing"),
		runMetric("correctness", "fuzz-b", "Valid"),
		runMetric("executions", "fuzz-a", ""),
	}
	for i := range metrics {
		if _, err := idx.AddSeries(&metrics[i]); err != nil {
			t.Fatalf("Failed to add series %d: %v", i, err)
		}
	}

	tests := []struct {
		selectors map[string]string
		want      int
	}{
		{nil, 4},
		{map[string]string{LabelRun: "fuzz-a"}, 3},
		{map[string]string{LabelName: "correctness", LabelCategory: "Valid"}, 2},
		{map[string]string{LabelName: "correctness", LabelRun: "fuzz-b", LabelCategory: "Valid"}, 1},
		{map[string]string{LabelCategory: "Lambda"}, 0},
		{map[string]string{"missing": "x"}, 0},
	}
	for _, tt := range tests {
		if got := idx.FindSeries(tt.selectors); len(got) != tt.want {
			t.Errorf("FindSeries(%v): expected %d series, got %d", tt.selectors, tt.want, len(got))
		}
	}

	values := idx.LabelValues(LabelCategory)
	if len(values) != 2 || values[0] != "Parsing" || values[1] != "Valid" {
		t.Errorf("Unexpected category values %v", values)
	}
	if values := idx.LabelValues("missing"); len(values) != 0 {
		t.Errorf("Expected no values, got %v", values)
	}
}

func TestIndexUpdateTimeRange(t *testing.T) {
	idx := NewIndex()
	metric := runMetric("coverage", "fuzz-a", "")

	id, err := idx.AddSeries(&metric)
	if err != nil {
		t.Fatalf("Failed to add series: %v", err)
	}

	// The first observation sets the range even when it starts above zero
	if err := idx.UpdateTimeRange(id, 10, 20); err != nil {
		t.Fatalf("Failed to update time range: %v", err)
	}
	meta, ok := idx.GetSeries(id)
	if !ok {
		t.Fatal("Series not found")
	}
	if meta.MinTime != 10 || meta.MaxTime != 20 {
		t.Errorf("Expected range [10, 20], got [%g, %g]", meta.MinTime, meta.MaxTime)
	}

	if err := idx.UpdateTimeRange(id, 5, 15); err != nil {
		t.Fatalf("Failed to update time range: %v", err)
	}
	if meta.MinTime != 5 || meta.MaxTime != 20 {
		t.Errorf("Expected range [5, 20], got [%g, %g]", meta.MinTime, meta.MaxTime)
	}

	if err := idx.UpdateTimeRange(id+1, 0, 1); err == nil {
		t.Error("Expected error for unknown series")
	}
}

func TestCalculateFingerprint(t *testing.T) {
	metric1 := types.Metric{Name: "correctness", Labels: map[string]string{"a": "1", "b": "2"}}
	metric2 := types.Metric{Name: "correctness", Labels: map[string]string{"b": "2", "a": "1"}}

	if calculateFingerprint(&metric1) != calculateFingerprint(&metric2) {
		t.Error("Fingerprints should be same regardless of label order")
	}

	metric3 := types.Metric{Name: "correctness", Labels: map[string]string{"a": "1", "b": "3"}}
	if calculateFingerprint(&metric1) == calculateFingerprint(&metric3) {
		t.Error("Different metrics should have different fingerprints")
	}

	// Separators keep label boundaries unambiguous
	metric4 := types.Metric{Name: "correctness", Labels: map[string]string{"a": "12"}}
	metric5 := types.Metric{Name: "correctness", Labels: map[string]string{"a1": "2"}}
	if calculateFingerprint(&metric4) == calculateFingerprint(&metric5) {
		t.Error("Label boundaries should affect the fingerprint")
	}
}

func TestIndexSerialize(t *testing.T) {
	idx := NewIndex()
	metrics := []types.Metric{
		runMetric("correctness", "fuzz-a", "Valid"),
		runMetric("corpus", "fuzz-a", ""),
		{Name: "bare"},
	}

	ids := make([]uint64, len(metrics))
	for i := range metrics {
		id, err := idx.AddSeries(&metrics[i])
		if err != nil {
			t.Fatalf("Failed to add series: %v", err)
		}
		ids[i] = id
	}
	if err := idx.UpdateTimeRange(ids[0], 0, 125.5); err != nil {
		t.Fatal(err)
	}

	data, err := idx.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize index: %v", err)
	}

	restored, err := DeserializeIndex(data)
	if err != nil {
		t.Fatalf("Failed to deserialize index: %v", err)
	}
	if restored.SeriesCount() != len(metrics) {
		t.Fatalf("Expected %d series, got %d", len(metrics), restored.SeriesCount())
	}

	meta, ok := restored.GetSeries(ids[0])
	if !ok {
		t.Fatal("Series not restored")
	}
	if !meta.Observed || meta.MinTime != 0 || meta.MaxTime != 125.5 {
		t.Errorf("Time range not restored: %+v", meta)
	}
	if meta.Metric.Labels[LabelCategory] != "Valid" {
		t.Errorf("Labels not restored: %v", meta.Metric.Labels)
	}
	if meta, _ := restored.GetSeries(ids[1]); meta.Observed {
		t.Error("Unobserved series restored as observed")
	}
	if got := restored.FindSeries(map[string]string{LabelRun: "fuzz-a"}); len(got) != 2 {
		t.Errorf("Label index not rebuilt, got %d series", len(got))
	}

	if _, err := DeserializeIndex(data[:len(data)-1]); err == nil {
		t.Error("Expected error for truncated index")
	}
}

func BenchmarkIndexFindSeries(b *testing.B) {
	idx := NewIndex()
	for i := 0; i < 10000; i++ {
		metric := runMetric("correctness", fmt.Sprintf("run-%d", i%100), fmt.Sprintf("cat-%d", i))
		idx.AddSeries(&metric)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.FindSeries(map[string]string{LabelRun: "run-7", LabelName: "correctness"})
	}
}

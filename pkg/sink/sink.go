// Package sink receives the per-run series produced by the analysis.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vjranagit/fuzzratio/pkg/storage"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// TenantRuns is the storage tenant holding run series
const TenantRuns = "runs"

// Sink consumes the results of finished runs. Implementations must be safe
// for concurrent use.
type Sink interface {
	WriteRun(ctx context.Context, res *types.RunResult) error
}

// Discard drops every result
type Discard struct{}

// WriteRun implements Sink
func (Discard) WriteRun(context.Context, *types.RunResult) error { return nil }

// MemorySink keeps results in memory, keyed by run name
type MemorySink struct {
	mu   sync.Mutex
	runs map[string]*types.RunResult
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{runs: make(map[string]*types.RunResult)}
}

// WriteRun implements Sink
func (m *MemorySink) WriteRun(_ context.Context, res *types.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[res.Summary.Name] = res
	return nil
}

// Get returns the result stored for a run
func (m *MemorySink) Get(name string) (*types.RunResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.runs[name]
	return res, ok
}

// Len returns the number of stored runs
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// StoreSink writes every chart of a run into a series store
type StoreSink struct {
	store storage.Storage
}

// NewStoreSink creates a sink backed by store
func NewStoreSink(store storage.Storage) *StoreSink {
	return &StoreSink{store: store}
}

// WriteRun implements Sink
func (s *StoreSink) WriteRun(ctx context.Context, res *types.RunResult) error {
	req := &types.WriteRequest{
		TenantID: TenantRuns,
		Series:   ToSeries(res),
	}
	if err := s.store.Write(ctx, req); err != nil {
		return fmt.Errorf("failed to store run %s: %w", res.Summary.Name, err)
	}
	return nil
}

// ToSeries converts a run's charts into labeled series. Stack members carry
// a category label with the display name.
func ToSeries(res *types.RunResult) []types.Series {
	series := make([]types.Series, 0, len(res.Charts))
	for _, c := range res.Charts {
		labels := map[string]string{storage.LabelRun: res.Summary.Name}
		if c.Label != "" {
			labels[storage.LabelCategory] = c.Label
		}
		samples := make([]types.Sample, len(c.Times))
		for i := range c.Times {
			samples[i] = types.Sample{Time: c.Times[i], Value: c.Values[i]}
		}
		series = append(series, types.Series{
			Metric:  types.Metric{Name: c.Name, Labels: labels},
			Samples: samples,
		})
	}
	return series
}

// Multi fans results out to several sinks
type Multi []Sink

// WriteRun implements Sink, writing to every sink even if one fails
func (m Multi) WriteRun(ctx context.Context, res *types.RunResult) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteRun(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

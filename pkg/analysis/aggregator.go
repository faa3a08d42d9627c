package analysis

import (
	"sort"

	"github.com/vjranagit/fuzzratio/pkg/telemetry"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

type runPoint struct {
	time       float64
	totals     map[string]float64
	executions float64
	coverage   float64
	corpus     float64
}

// Aggregator folds the snapshots of one run into a RunSeries
type Aggregator struct {
	limit    *float64
	stopped  bool
	points   []runPoint
	clients  map[string][]types.ClientPoint
	registry *CategoryRegistry
}

// NewAggregator creates an aggregator. A non-nil limit stops aggregation at
// the first snapshot whose elapsed time exceeds it.
func NewAggregator(limit *float64) *Aggregator {
	return &Aggregator{
		limit:    limit,
		clients:  make(map[string][]types.ClientPoint),
		registry: NewCategoryRegistry(),
	}
}

// Add folds one snapshot. It returns false once the time limit has been
// exceeded; later snapshots are ignored.
func (a *Aggregator) Add(s *types.Snapshot) bool {
	if a.stopped {
		return false
	}
	if a.limit != nil && s.Elapsed > *a.limit {
		a.stopped = true
		return false
	}

	ids := telemetry.ContributingClients(s)
	if len(ids) == 0 {
		return true
	}

	totals := make(map[string]float64)
	for _, id := range ids {
		counts := s.Clients[id].Counts
		for k, v := range counts {
			totals[k] += v
		}
		a.registry.AddAll(counts)
		a.clients[id] = append(a.clients[id], types.ClientPoint{Time: s.Elapsed, Counts: counts})
	}

	a.points = append(a.points, runPoint{
		time:       s.Elapsed,
		totals:     totals,
		executions: float64(s.Executions),
		coverage:   float64(maxEdges(s)),
		corpus:     float64(s.Corpus),
	})
	return true
}

// maxEdges is the best edge count over all clients of one snapshot
func maxEdges(s *types.Snapshot) int64 {
	var best int64
	for _, c := range s.Clients {
		if c.Edges > best {
			best = c.Edges
		}
	}
	return best
}

// Finish sorts the collected points by time and returns the run series,
// or nil when no snapshot carried category data.
func (a *Aggregator) Finish() *types.RunSeries {
	if len(a.points) == 0 {
		return nil
	}

	sort.SliceStable(a.points, func(i, j int) bool { return a.points[i].time < a.points[j].time })

	rs := &types.RunSeries{
		Times:      make([]float64, len(a.points)),
		Categories: a.registry.Keys(),
		Totals:     make([]map[string]float64, len(a.points)),
		Executions: make([]float64, len(a.points)),
		Coverage:   make([]float64, len(a.points)),
		Corpus:     make([]float64, len(a.points)),
		Clients:    make(map[string][]types.ClientPoint, len(a.clients)),
	}
	for i, p := range a.points {
		rs.Times[i] = p.time
		rs.Totals[i] = p.totals
		rs.Executions[i] = p.executions
		rs.Coverage[i] = p.coverage
		rs.Corpus[i] = p.corpus
	}
	for id, history := range a.clients {
		h := append([]types.ClientPoint(nil), history...)
		sort.SliceStable(h, func(i, j int) bool { return h[i].Time < h[j].Time })
		rs.Clients[id] = h
	}

	return rs
}

// Stopped reports whether the time limit cut the run short
func (a *Aggregator) Stopped() bool { return a.stopped }

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

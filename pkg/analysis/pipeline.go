// Package analysis turns the cumulative per-client correctness counters of a
// fuzzing run into cumulative and smoothed current-rate category ratios.
package analysis

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/vjranagit/fuzzratio/pkg/report"
	"github.com/vjranagit/fuzzratio/pkg/telemetry"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// DefaultGridInterval is the resampling step in seconds
const DefaultGridInterval = 10.0

// ErrNoData is returned by ProcessFile for runs without category data
var ErrNoData = errors.New("no category data")

// Options control the processing of one run
type Options struct {
	// TimeLimit stops reading a run at the first record past it
	TimeLimit    *float64
	GridInterval float64
	Labels       report.Labels
}

// DefaultOptions returns the default processing options
func DefaultOptions() Options {
	return Options{
		GridInterval: DefaultGridInterval,
		Labels:       report.DefaultLabels(),
	}
}

// RunName derives a run name from the directory holding its stats file
func RunName(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// ProcessFile analyzes the run stored at src.Path. An empty run yields
// ErrNoData along with any parse errors.
func ProcessFile(src types.RunSource, opts Options) (*types.RunResult, telemetry.ParseErrors, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run %s: %w", src.Name, err)
	}
	defer f.Close()

	name := src.Name
	if name == "" {
		name = RunName(src.Path)
	}

	res, perrs, err := Analyze(name, f, opts)
	if err != nil {
		return nil, perrs, fmt.Errorf("failed to read run %s: %w", name, err)
	}
	if res == nil {
		return nil, perrs, ErrNoData
	}
	return res, perrs, nil
}

// Analyze reads one run's telemetry from r and builds its result. The
// result is nil when no record carried category data.
func Analyze(name string, r io.Reader, opts Options) (*types.RunResult, telemetry.ParseErrors, error) {
	agg := NewAggregator(opts.TimeLimit)
	perrs, err := telemetry.ReadAll(r, func(_ int, snap *types.Snapshot) bool {
		return agg.Add(snap)
	})
	if err != nil {
		return nil, perrs, err
	}

	rs := agg.Finish()
	if rs == nil {
		return nil, perrs, nil
	}
	res := Build(name, rs, opts)
	res.ParseErrors = perrs.Lines()
	return res, perrs, nil
}

// Build computes the cumulative and smoothed ratios of an aggregated run
// together with its chart series.
func Build(name string, rs *types.RunSeries, opts Options) *types.RunResult {
	labels := opts.Labels
	if labels == nil {
		labels = report.DefaultLabels()
	}
	step := opts.GridInterval
	if step <= 0 {
		step = DefaultGridInterval
	}

	keys := append([]string(nil), rs.Categories...)
	report.NaturalSort(keys)
	order := make([]int, len(keys))
	for i, k := range keys {
		for c, cat := range rs.Categories {
			if cat == k {
				order[i] = c
				break
			}
		}
	}
	display := labels.Apply(keys)

	res := &types.RunResult{
		Categories: keys,
		Labels:     display,
	}

	cumulative := CumulativeRatios(rs)
	last := len(rs.Times) - 1
	res.Summary = types.RunSummary{
		Name: name,
		Cumulative: types.RatioRow{
			Time:   rs.Times[last],
			Labels: display,
			Ratios: pick(cumulative[last], order),
		},
	}
	for i, c := range order {
		res.Charts = append(res.Charts, types.Chart{
			Name:   types.ChartCumulative,
			Label:  display[i],
			Times:  rs.Times,
			Values: column(cumulative, c),
		})
	}

	res.Charts = append(res.Charts,
		types.Chart{Name: types.ChartExecutions, Times: rs.Times, Values: rs.Executions},
		types.Chart{Name: types.ChartCoverage, Times: rs.Times, Values: rs.Coverage},
		logLogCoverage(rs),
		types.Chart{Name: types.ChartCorpus, Times: rs.Times, Values: rs.Corpus},
	)

	if smoothed := SmoothRatios(Resample(rs, step)); smoothed != nil {
		end := len(smoothed.Times) - 1
		res.Summary.Current = &types.RatioRow{
			Time:   smoothed.Times[end],
			Labels: display,
			Ratios: pick(smoothed.Ratios[end], order),
		}
		for i, c := range order {
			res.Charts = append(res.Charts, types.Chart{
				Name:   types.ChartCurrent,
				Label:  display[i],
				Times:  smoothed.Times,
				Values: column(smoothed.Ratios, c),
			})
		}
	}

	return res
}

// logLogCoverage clamps times and coverage away from zero for log axes
func logLogCoverage(rs *types.RunSeries) types.Chart {
	floor := math.Max(rs.Times[0], 1e-6)
	times := make([]float64, len(rs.Times))
	values := make([]float64, len(rs.Coverage))
	for i, t := range rs.Times {
		times[i] = math.Max(t, floor)
		values[i] = math.Max(rs.Coverage[i], 1)
	}
	return types.Chart{Name: types.ChartCoverageLogLog, Times: times, Values: values}
}

func pick(row []float64, order []int) []float64 {
	out := make([]float64, len(order))
	for i, c := range order {
		out[i] = row[c]
	}
	return out
}

func column(rows [][]float64, c int) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[c]
	}
	return out
}

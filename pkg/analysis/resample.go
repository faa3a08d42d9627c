package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

// Grid holds cumulative category counts summed over all clients on a
// regular time axis
type Grid struct {
	Times []float64
	// Counts has one row per grid time and one column per category
	Counts [][]float64
}

// BuildGrid returns min, min+step, ... up to the first value >= max
func BuildGrid(min, max, step float64) []float64 {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) || math.IsNaN(min) || math.IsNaN(max) || max < min {
		return nil
	}

	n := int(math.Floor((max-min)/step)) + 1
	if min+float64(n-1)*step < max {
		n++
	}

	times := make([]float64, n)
	for k := range times {
		times[k] = min + float64(k)*step
	}
	return times
}

// Interpolate evaluates the piecewise linear function through (xs, ys) at
// every target time. xs must be sorted. Targets outside the observed range
// take the nearest boundary value; a single observation is held flat and no
// observations yield zeros.
func Interpolate(targets, xs, ys []float64) []float64 {
	out := make([]float64, len(targets))
	switch len(xs) {
	case 0:
		return out
	case 1:
		for i := range out {
			out[i] = ys[0]
		}
		return out
	}

	last := len(xs) - 1
	for i, t := range targets {
		switch {
		case t <= xs[0]:
			out[i] = ys[0]
		case t >= xs[last]:
			out[i] = ys[last]
		default:
			// first observation strictly after t; xs[j-1] <= t < xs[j]
			j := sort.Search(len(xs), func(k int) bool { return xs[k] > t })
			x0, x1 := xs[j-1], xs[j]
			y0, y1 := ys[j-1], ys[j]
			out[i] = y0 + (y1-y0)*(t-x0)/(x1-x0)
		}
	}
	return out
}

// Resample projects every client's cumulative history onto a regular grid
// spanning the run's observed times and sums the clients per category.
// Columns follow rs.Categories.
func Resample(rs *types.RunSeries, step float64) *Grid {
	if rs.Len() == 0 {
		return nil
	}
	times := BuildGrid(rs.Times[0], rs.Times[len(rs.Times)-1], step)
	if len(times) == 0 {
		return nil
	}

	columns := make([][]float64, len(rs.Categories))
	for c := range columns {
		columns[c] = make([]float64, len(times))
	}

	ids := make([]string, 0, len(rs.Clients))
	for id := range rs.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		history := rs.Clients[id]
		if len(history) == 0 {
			continue
		}
		xs := make([]float64, len(history))
		for i, p := range history {
			xs[i] = p.Time
		}
		for c, cat := range rs.Categories {
			if !reported(history, cat) {
				continue
			}
			ys := make([]float64, len(history))
			for i, p := range history {
				ys[i] = p.Counts[cat]
			}
			floats.Add(columns[c], Interpolate(times, xs, ys))
		}
	}

	g := &Grid{Times: times, Counts: make([][]float64, len(times))}
	for k := range times {
		row := make([]float64, len(columns))
		for c := range columns {
			row[c] = columns[c][k]
		}
		g.Counts[k] = row
	}
	return g
}

// reported tells whether a client ever reported cat
func reported(history []types.ClientPoint, cat string) bool {
	for _, p := range history {
		if _, ok := p.Counts[cat]; ok {
			return true
		}
	}
	return false
}

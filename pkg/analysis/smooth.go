package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SmoothingFraction is the share of rate points covered by the moving
// average window
const SmoothingFraction = 0.05

// Smoothed is the current-rate distribution over the grid
type Smoothed struct {
	Times  []float64
	Ratios [][]float64
	Window int
}

// Rates differences consecutive grid rows and divides by the time step.
// Rows with a non-positive time step are all-zero.
func Rates(g *Grid) [][]float64 {
	if g == nil || len(g.Times) < 2 {
		return nil
	}
	rates := make([][]float64, len(g.Times)-1)
	for k := 1; k < len(g.Times); k++ {
		row := make([]float64, len(g.Counts[k]))
		dt := g.Times[k] - g.Times[k-1]
		if dt > 0 {
			floats.SubTo(row, g.Counts[k], g.Counts[k-1])
			floats.Scale(1/dt, row)
		}
		rates[k-1] = row
	}
	return rates
}

// WindowSize returns the odd moving-average width for n rate points: about
// 5% of n, at least 3, never more than n. Below three points the window
// shrinks to the largest odd width that fits.
func WindowSize(n int) int {
	if n <= 0 {
		return 0
	}
	w := int(math.Round(SmoothingFraction * float64(n)))
	w = max(3, min(w, n))
	if w%2 == 0 {
		w++
	}
	if w > n {
		w = n
		if w%2 == 0 {
			w--
		}
	}
	return w
}

// MovingAverage applies a centered box filter of the given odd width with
// same-length output. Samples beyond either end count as zero.
func MovingAverage(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	if window <= 0 {
		return out
	}
	half := window / 2
	for i := range xs {
		lo := max(0, i-half)
		hi := min(len(xs)-1, i+half)
		out[i] = floats.Sum(xs[lo:hi+1]) / float64(window)
	}
	return out
}

// SmoothRatios turns the grid's cumulative counts into smoothed current-rate
// ratios. The first point is the grid's initial cumulative ratio; rows with
// no rate activity fall back to it as well. It returns nil when the grid has
// fewer than two points.
func SmoothRatios(g *Grid) *Smoothed {
	rates := Rates(g)
	if len(rates) == 0 {
		return nil
	}

	initial := NormalizeRow(g.Counts[0])
	window := WindowSize(len(rates))
	cols := len(initial)

	smoothed := make([][]float64, len(rates))
	for i := range smoothed {
		smoothed[i] = make([]float64, cols)
	}
	column := make([]float64, len(rates))
	for c := 0; c < cols; c++ {
		for i, row := range rates {
			column[i] = row[c]
		}
		for i, v := range MovingAverage(column, window) {
			smoothed[i][c] = v
		}
	}

	out := &Smoothed{
		Times:  append([]float64(nil), g.Times...),
		Ratios: make([][]float64, 0, len(rates)+1),
		Window: window,
	}
	out.Ratios = append(out.Ratios, initial)
	for _, row := range smoothed {
		if floats.Sum(row) > 0 {
			out.Ratios = append(out.Ratios, NormalizeRow(row))
		} else {
			out.Ratios = append(out.Ratios, append([]float64(nil), initial...))
		}
	}
	return out
}

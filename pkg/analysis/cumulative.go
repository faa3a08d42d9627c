package analysis

import (
	"gonum.org/v1/gonum/floats"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

// NormalizeRow returns row divided by its sum. Rows without a positive sum
// are returned unscaled, so an all-zero row stays all-zero.
func NormalizeRow(row []float64) []float64 {
	out := append([]float64(nil), row...)
	if sum := floats.Sum(out); sum > 0 {
		floats.Scale(1/sum, out)
	}
	return out
}

// CountMatrix lays the run-level totals out as rows of rs.Categories columns
func CountMatrix(rs *types.RunSeries) [][]float64 {
	reg := NewCategoryRegistry()
	for _, k := range rs.Categories {
		reg.Add(k)
	}
	rows := make([][]float64, len(rs.Totals))
	for i, totals := range rs.Totals {
		rows[i] = reg.Row(totals)
	}
	return rows
}

// CumulativeRatios returns the category distribution at every observed time
// of the run, with columns in rs.Categories order.
func CumulativeRatios(rs *types.RunSeries) [][]float64 {
	counts := CountMatrix(rs)
	ratios := make([][]float64, len(counts))
	for i, row := range counts {
		ratios[i] = NormalizeRow(row)
	}
	return ratios
}

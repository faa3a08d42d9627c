package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

func TestNaturalSort(t *testing.T) {
	keys := []string{"23", "2", "10", "Valid", "a10", "a2", "1", "007", "Inline Assembly"}
	NaturalSort(keys)
	assert.Equal(t, []string{"1", "2", "007", "10", "23", "a2", "a10", "Inline Assembly", "Valid"}, keys)
}

func TestNaturalLess(t *testing.T) {
	assert.True(t, NaturalLess("run-2", "run-10"))
	assert.False(t, NaturalLess("run-10", "run-2"))
	assert.True(t, NaturalLess("lexing", "Parsing"))
	// numerically equal chunks fall back to plain comparison
	assert.True(t, NaturalLess("007", "7"))
	assert.False(t, NaturalLess("7", "007"))
	assert.True(t, NaturalLess("x", "x1"))
}

func TestLabels(t *testing.T) {
	l := DefaultLabels()
	assert.Equal(t, "Valid", l.Label("23"))
	assert.Equal(t, "42", l.Label("42"))
	assert.Equal(t, []string{"None", "Inline Assembly", "x"}, l.Apply([]string{"1", "18", "x"}))

	merged := l.Merge(map[string]string{"42": "Codegen", "1": "Nothing"})
	assert.Equal(t, "Codegen", merged.Label("42"))
	assert.Equal(t, "Nothing", merged.Label("1"))
	assert.Equal(t, "None", l.Label("1"))
}

func TestTabulate(t *testing.T) {
	summaries := []types.RunSummary{
		{
			Name:       "run-a",
			Cumulative: types.RatioRow{Labels: []string{"Lexing", "Valid"}, Ratios: []float64{0.25, 0.75}},
			Current:    &types.RatioRow{Labels: []string{"Lexing", "Valid"}, Ratios: []float64{0.1, 0.9}},
		},
		{
			Name:       "run-b",
			Cumulative: types.RatioRow{Labels: []string{"Parsing", "Lexing"}, Ratios: []float64{0.6, 0.4}},
		},
	}

	tables := Tabulate(summaries)

	cum := tables.Cumulative
	assert.Equal(t, TitleCumulative, cum.Title)
	assert.Equal(t, []string{"Lexing", "Parsing", "Valid"}, cum.Columns)
	require.Len(t, cum.Rows, 2)
	assert.Equal(t, Row{Name: "run-a", Values: []float64{0.25, 0, 0.75}}, cum.Rows[0])
	assert.Equal(t, Row{Name: "run-b", Values: []float64{0.4, 0.6, 0}}, cum.Rows[1])

	cur := tables.Current
	assert.Equal(t, []string{"Lexing", "Valid"}, cur.Columns)
	require.Len(t, cur.Rows, 1)
	assert.Equal(t, "run-a", cur.Rows[0].Name)

	empty := Tabulate(nil)
	assert.True(t, empty.Cumulative.Empty())
	assert.True(t, empty.Current.Empty())
}

func TestWriteText(t *testing.T) {
	table := BuildTable("Ratios", []string{"run-a"}, []types.RatioRow{
		{Labels: []string{"Valid", "Lexing"}, Ratios: []float64{0.75, 0.25}},
	})

	var buf bytes.Buffer
	require.NoError(t, table.WriteText(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Ratios:", lines[0])
	assert.Equal(t, []string{"Run", "Lexing", "Valid"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"run-a", "0.2500", "0.7500"}, strings.Fields(lines[2]))
}

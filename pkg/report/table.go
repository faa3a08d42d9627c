package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

// Row is one run's ratios, aligned with Table.Columns
type Row struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Table compares the final ratios of several runs
type Table struct {
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Tables holds both comparison tables
type Tables struct {
	Cumulative Table `json:"cumulative"`
	Current    Table `json:"current"`
}

// Table titles
const (
	TitleCumulative = "Cumulative correctness ratios"
	TitleCurrent    = "Current (smoothed) correctness ratios"
)

// Tabulate builds the cumulative and current tables from per-run
// summaries. Runs without a smoothed row are left out of the current table.
func Tabulate(summaries []types.RunSummary) Tables {
	cumulative := make([]types.RatioRow, 0, len(summaries))
	current := make([]types.RatioRow, 0, len(summaries))
	var cumNames, curNames []string
	for _, s := range summaries {
		cumulative = append(cumulative, s.Cumulative)
		cumNames = append(cumNames, s.Name)
		if s.Current != nil {
			current = append(current, *s.Current)
			curNames = append(curNames, s.Name)
		}
	}
	return Tables{
		Cumulative: BuildTable(TitleCumulative, cumNames, cumulative),
		Current:    BuildTable(TitleCurrent, curNames, current),
	}
}

// BuildTable lays rows out over the naturally sorted union of their labels.
// A run without a given label gets 0 in that column.
func BuildTable(title string, names []string, rows []types.RatioRow) Table {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range rows {
		for _, label := range r.Labels {
			if !seen[label] {
				seen[label] = true
				columns = append(columns, label)
			}
		}
	}
	NaturalSort(columns)

	t := Table{Title: title, Columns: columns, Rows: make([]Row, len(rows))}
	for i, r := range rows {
		byLabel := make(map[string]float64, len(r.Labels))
		for j, label := range r.Labels {
			if j < len(r.Ratios) {
				byLabel[label] = r.Ratios[j]
			}
		}
		values := make([]float64, len(columns))
		for c, label := range columns {
			values[c] = byLabel[label]
		}
		t.Rows[i] = Row{Name: names[i], Values: values}
	}
	return t
}

// Empty reports whether the table has no rows
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// WriteText renders the table as aligned plain text
func (t Table) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if t.Title != "" {
		fmt.Fprintf(tw, "%s:\n", t.Title)
	}
	fmt.Fprintf(tw, "Run\t%s\n", strings.Join(t.Columns, "\t"))
	for _, r := range t.Rows {
		cells := make([]string, len(r.Values))
		for i, v := range r.Values {
			cells[i] = fmt.Sprintf("%.4f", v)
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Name, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

package types

// ClientReport is one client's contribution to a snapshot
type ClientReport struct {
	Executions uint64
	// Counts are cumulative-to-date absolute counts per category key
	Counts map[string]float64
	// Edges is the numerator of the client's edge coverage ratio
	Edges int64
}

// Snapshot represents one decoded telemetry record
type Snapshot struct {
	Elapsed    float64
	Executions uint64
	Corpus     uint64
	// Clients holds every client present in the record, including idle ones
	Clients map[string]ClientReport
}

// ClientPoint is a single observation in a client's history
type ClientPoint struct {
	Time   float64
	Counts map[string]float64
}

// RunSeries is the time-sorted aggregate of one run
type RunSeries struct {
	Times      []float64
	Categories []string
	Totals     []map[string]float64
	Executions []float64
	Coverage   []float64
	Corpus     []float64
	// Clients maps client id to its time-sorted history
	Clients map[string][]ClientPoint
}

// Len returns the number of run-level time points
func (rs *RunSeries) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Times)
}

// RatioRow is a labeled categorical distribution at one point in time
type RatioRow struct {
	Time   float64   `json:"time"`
	Labels []string  `json:"labels"`
	Ratios []float64 `json:"ratios"`
}

// RunSummary is the final state of one run, as consumed by the tabulator
type RunSummary struct {
	Name       string    `json:"name"`
	Cumulative RatioRow  `json:"cumulative"`
	Current    *RatioRow `json:"current,omitempty"`
}

// Chart is one labeled numeric series ready for plotting
type Chart struct {
	Name   string    `json:"name"`
	Label  string    `json:"label,omitempty"`
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
}

// RunResult is everything produced for a single run
type RunResult struct {
	Summary RunSummary `json:"summary"`
	// Categories are the run's category keys in natural order
	Categories  []string `json:"categories"`
	Labels      []string `json:"labels"`
	ParseErrors []int    `json:"parse_errors,omitempty"`
	// Charts holds stacks and scalar curves, see the Chart* names
	Charts []Chart `json:"charts"`
}

// Chart names produced per run
const (
	ChartCumulative     = "correctness"
	ChartCurrent        = "correctness_current"
	ChartExecutions     = "executions"
	ChartCoverage       = "coverage"
	ChartCoverageLogLog = "coverage_loglog"
	ChartCorpus         = "corpus"
)

// RunSource describes where one run's telemetry lives
type RunSource struct {
	Name string
	Path string
}

// Sample represents a single sample at an elapsed run time in seconds
type Sample struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// Metric represents a time-series metric with labels
type Metric struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
}

// Series represents a complete time-series
type Series struct {
	Metric  Metric   `json:"metric"`
	Samples []Sample `json:"samples"`
}

// WriteRequest represents a write request to the storage engine
type WriteRequest struct {
	TenantID string   `json:"tenant_id"`
	Series   []Series `json:"series"`
}

// QueryRequest represents a query request over elapsed run time
type QueryRequest struct {
	TenantID  string
	Query     string
	StartTime float64
	EndTime   float64
}

// QueryResult represents query results
type QueryResult struct {
	Series []Series `json:"series"`
	Error  error    `json:"-"`
}

package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuzzratio",
		Name:      "runs_processed_total",
		Help:      "Runs that produced a summary",
	})

	runsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuzzratio",
		Name:      "runs_skipped_total",
		Help:      "Runs without any category data",
	})

	runsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuzzratio",
		Name:      "runs_failed_total",
		Help:      "Runs that could not be read or written to the sink",
	})

	malformedLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuzzratio",
		Name:      "malformed_lines_total",
		Help:      "Telemetry lines that failed to decode",
	})

	runPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fuzzratio",
		Name:      "run_points",
		Help:      "Observed time points per run",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fuzzratio",
		Name:      "run_duration_seconds",
		Help:      "Wall time spent processing one run",
		Buckets:   prometheus.DefBuckets,
	})
)

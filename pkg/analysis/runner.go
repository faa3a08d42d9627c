package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/vjranagit/fuzzratio/pkg/sink"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// Runner processes independent runs on a bounded worker pool
type Runner struct {
	opts        Options
	parallelism int
	sink        sink.Sink
	logger      *slog.Logger
}

// NewRunner creates a runner. A parallelism below 1 processes runs
// sequentially; a nil sink discards results.
func NewRunner(opts Options, parallelism int, out sink.Sink, logger *slog.Logger) *Runner {
	if parallelism < 1 {
		parallelism = 1
	}
	if out == nil {
		out = sink.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, parallelism: parallelism, sink: out, logger: logger}
}

// Run processes every source and returns the summaries of the runs that
// produced data, in source order. Empty runs are skipped silently; runs
// that fail are logged and reported in the joined error without affecting
// the others.
func (r *Runner) Run(ctx context.Context, sources []types.RunSource) ([]types.RunSummary, error) {
	results := make([]*types.RunSummary, len(sources))

	p := pool.New().WithMaxGoroutines(r.parallelism).WithErrors().WithContext(ctx)
	for i, src := range sources {
		if src.Name == "" {
			src.Name = RunName(src.Path)
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := r.process(ctx, src)
			results[i] = summary
			return err
		})
	}
	err := p.Wait()

	summaries := make([]types.RunSummary, 0, len(sources))
	for _, s := range results {
		if s != nil {
			summaries = append(summaries, *s)
		}
	}
	return summaries, err
}

func (r *Runner) process(ctx context.Context, src types.RunSource) (*types.RunSummary, error) {
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	logger := r.logger.With("run", src.Name, "path", src.Path)
	logger.Info("processing run")

	res, perrs, err := ProcessFile(src, r.opts)
	if len(perrs) > 0 {
		malformedLines.Add(float64(len(perrs)))
		logger.Warn("run has malformed lines", "count", len(perrs), "lines", perrs.Lines())
	}
	if errors.Is(err, ErrNoData) {
		runsSkipped.Inc()
		logger.Info("run skipped, no category data")
		return nil, nil
	}
	if err != nil {
		runsFailed.Inc()
		logger.Error("run failed", "error", err)
		return nil, err
	}

	runsProcessed.Inc()
	runPoints.Observe(float64(len(res.Charts[0].Times)))
	logRatios(logger, "final cumulative ratios", res.Summary.Cumulative)
	if res.Summary.Current != nil {
		logRatios(logger, "final current ratios", *res.Summary.Current)
	}

	if err := r.sink.WriteRun(ctx, res); err != nil {
		runsFailed.Inc()
		logger.Error("sink write failed", "error", err)
		return &res.Summary, fmt.Errorf("run %s: %w", res.Summary.Name, err)
	}
	return &res.Summary, nil
}

func logRatios(logger *slog.Logger, msg string, row types.RatioRow) {
	attrs := []any{"t", fmt.Sprintf("%.2fs", row.Time)}
	for i, label := range row.Labels {
		attrs = append(attrs, label, fmt.Sprintf("%.4f", row.Ratios[i]))
	}
	logger.Info(msg, attrs...)
}

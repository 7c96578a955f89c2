package batch

import (
	"context"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// Item is the outcome for one report file. Err is set when the file could
// not be loaded or the run was rejected; step failures live in Result.Errors.
type Item struct {
	Path   string                 `json:"path"`
	Result *models.AnalysisResult `json:"result,omitempty"`
	Err    error                  `json:"-"`
	Error  string                 `json:"error,omitempty"`
}

// Runner analyzes many reports on a bounded pool of workers.
// Every report gets its own run; nothing is shared between runs.
type Runner struct {
	analysis   interfaces.AnalysisService
	loader     interfaces.ReportLoader
	maxWorkers int
	logger     arbor.ILogger
}

// NewRunner creates a batch runner
func NewRunner(analysis interfaces.AnalysisService, loader interfaces.ReportLoader, maxWorkers int, logger arbor.ILogger) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Runner{
		analysis:   analysis,
		loader:     loader,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// Run analyzes every path and returns one item per path in input order.
// A failed report never stops the others; its error is kept on the item.
func (r *Runner) Run(ctx context.Context, paths []string, options models.RunOptions) []Item {
	items := make([]Item, len(paths))

	r.logger.Info().
		Int("reports", len(paths)).
		Int("max_workers", r.maxWorkers).
		Msg("Starting batch analysis")

	var g errgroup.Group
	g.SetLimit(r.maxWorkers)
	for i, path := range paths {
		g.Go(func() error {
			items[i] = r.analyze(ctx, path, options)
			return nil
		})
	}
	_ = g.Wait() // errors are captured per item

	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
		}
	}
	r.logger.Info().
		Int("reports", len(paths)).
		Int("rejected", failed).
		Msg("Batch analysis complete")

	return items
}

// analyze loads and runs a single report
func (r *Runner) analyze(ctx context.Context, path string, options models.RunOptions) Item {
	item := Item{Path: path}

	if err := ctx.Err(); err != nil {
		item.setErr(err)
		return item
	}

	text, err := r.loader.Load(ctx, path)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Report could not be loaded")
		item.setErr(err)
		return item
	}

	result, err := r.analysis.Analyze(ctx, text, options)
	if err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("Analysis rejected")
		item.setErr(err)
		return item
	}
	item.Result = result

	r.logger.Debug().
		Str("path", path).
		Str("status", result.RunMetadata.Status).
		Msg("Report analyzed")

	return item
}

func (i *Item) setErr(err error) {
	i.Err = err
	i.Error = err.Error()
}

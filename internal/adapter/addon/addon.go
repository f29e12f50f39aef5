// Package addon implements the post-scan enrichment pipeline. Addons run
// in a fixed order after all provider probes settle and only mutate
// result profiles; a failing addon marks its own keys and never fails
// the job.
package addon

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// Pipeline runs addons sequentially over a job's settled results.
type Pipeline struct {
	addons []domain.Addon
	log    *slog.Logger
}

// NewPipeline builds a pipeline preserving the given addon order.
func NewPipeline(log *slog.Logger, addons ...domain.Addon) *Pipeline {
	return &Pipeline{addons: addons, log: log}
}

// Run executes every addon in order. A panicking addon is logged and
// skipped; the rest of the pipeline still runs.
func (p *Pipeline) Run(ctx context.Context, username string, results []domain.Result) {
	for _, a := range p.addons {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		p.runOne(ctx, a, username, results)
		p.log.Debug("addon finished",
			slog.String("addon", a.Name()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	}
}

func (p *Pipeline) runOne(ctx context.Context, a domain.Addon, username string, results []domain.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("addon panic recovered",
				slog.String("addon", a.Name()), slog.Any("recover", rec),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	a.Run(ctx, username, results)
}

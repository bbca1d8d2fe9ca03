// Package cronrunner schedules the periodic jobs: the due-room settle sweep
// and the price snapshot archive.
package cronrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner runs jobs on six-field (with seconds) cron schedules. Each run gets
// the base context and overlapping runs of the same job are skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

// New creates a Runner. Jobs receive baseCtx.
func New(baseCtx context.Context, logger *slog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger = logger.With(slog.String("component", "cron"))
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under name on spec.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.logger.Warn("cron job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			return
		}
		r.logger.Debug("cron job done",
			slog.String("job", name),
			slog.Duration("took", time.Since(start)),
		)
	})
}

// Len returns the number of scheduled jobs.
func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

// Start starts the scheduler in its own goroutine.
func (r *Runner) Start() {
	r.logger.Info("cron started", slog.Int("jobs", r.Len()))
	r.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

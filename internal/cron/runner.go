package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules named background jobs against a shared base context, so
// jobs stop getting useful contexts once the process begins shutting down.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers a job under a cron spec. Slow runs are logged with the job
// name so a stuck janitor is visible.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		start := time.Now()
		job(r.baseCtx)
		if elapsed := time.Since(start); elapsed > time.Minute && r.logger != nil {
			r.logger.Warn("cron job ran long",
				zap.String("job", name),
				zap.Duration("elapsed", elapsed),
			)
		}
	})
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}

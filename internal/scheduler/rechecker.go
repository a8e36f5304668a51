package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

// Starter is the part of Scheduler the Rechecker drives.
type Starter interface {
	Start(ctx context.Context) (domain.RunState, bool)
}

// Rechecker starts a run every Interval. A tick that lands while a run is
// still in progress is skipped.
type Rechecker struct {
	Logger    *zap.Logger
	Scheduler Starter
	Interval  time.Duration
}

func NewRechecker(logger *zap.Logger, s Starter, interval time.Duration) *Rechecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < 0 {
		interval = 0
	}
	return &Rechecker{Logger: logger, Scheduler: s, Interval: interval}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
// An Interval of 0 disables it.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Rechecker) runOnce(ctx context.Context) {
	st, started := r.Scheduler.Start(ctx)
	if !started {
		r.Logger.Debug("rechecker_skipped",
			zap.String("run_id", st.RunID),
			zap.Int("completed", st.CompletedCount),
			zap.Int("total", st.TotalInstances),
		)
		return
	}
	r.Logger.Debug("rechecker_started", zap.String("run_id", st.RunID))
}

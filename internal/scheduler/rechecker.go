package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/diagnose"
)

type Diagnoser interface {
	Run(ctx context.Context) diagnose.Report
}

// Rechecker repeats the diagnostic on an interval and keeps the latest
// report in memory.
type Rechecker struct {
	Logger    *zap.Logger
	Diagnoser Diagnoser
	Interval  time.Duration
	Alerter   *Alerter // optional

	mu     sync.RWMutex
	latest *diagnose.Report
}

func NewRechecker(logger *zap.Logger, d Diagnoser, interval time.Duration, alerter *Alerter) *Rechecker {
	if interval < 0 {
		interval = 0
	}
	return &Rechecker{
		Logger:    logger,
		Diagnoser: d,
		Interval:  interval,
		Alerter:   alerter,
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs one diagnostic, stores it as the latest and hands it to the
// alerter.
func (r *Rechecker) RunOnce(ctx context.Context) diagnose.Report {
	rep := r.Diagnoser.Run(ctx)

	r.mu.Lock()
	r.latest = &rep
	r.mu.Unlock()

	r.Logger.Debug("rechecker_checked",
		zap.String("run_id", rep.RunID),
		zap.String("diagnosis", string(rep.Recommendation.Diagnosis)),
		zap.String("severity", string(rep.Severity)),
	)
	if r.Alerter != nil {
		if err := r.Alerter.Observe(ctx, rep); err != nil {
			r.Logger.Warn("rechecker_alert_error", zap.String("run_id", rep.RunID), zap.Error(err))
		}
	}
	return rep
}

// Latest returns the most recent report, if any run has finished.
func (r *Rechecker) Latest() (diagnose.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return diagnose.Report{}, false
	}
	return *r.latest, true
}

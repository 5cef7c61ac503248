package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// Recorder receives every outcome a Runner produces.
type Recorder interface {
	Observe(o domain.ProbeOutcome)
}

// DefaultTimeout bounds targets that carry no timeout of their own.
const DefaultTimeout = 10 * time.Second

// Runner fans targets out to a Checker. Probes do not cancel each other;
// each is bounded by its own timeout (or DefaultTimeout) plus Grace.
type Runner struct {
	Checker        Checker
	Concurrency    int
	Grace          time.Duration
	DefaultTimeout time.Duration
	Logger         *zap.Logger
	Recorder       Recorder
}

func NewRunner(checker Checker, concurrency int, logger *zap.Logger) *Runner {
	return &Runner{
		Checker:        checker,
		Concurrency:    concurrency,
		Grace:          2 * time.Second,
		DefaultTimeout: DefaultTimeout,
		Logger:         logger,
	}
}

// Run returns exactly one outcome per target; out[i] belongs to targets[i].
func (r *Runner) Run(ctx context.Context, targets []domain.ProbeTarget) []domain.ProbeOutcome {
	out := make([]domain.ProbeOutcome, len(targets))

	var g errgroup.Group
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			out[i] = r.runOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Runner) effectiveTimeout(t domain.ProbeTarget) time.Duration {
	switch {
	case t.Timeout > 0:
		return t.Timeout
	case r.DefaultTimeout > 0:
		return r.DefaultTimeout
	}
	return DefaultTimeout
}

func (r *Runner) runOne(ctx context.Context, t domain.ProbeTarget) domain.ProbeOutcome {
	ctx, cancel := context.WithTimeout(ctx, r.effectiveTimeout(t)+r.Grace)
	defer cancel()

	start := time.Now()
	done := make(chan domain.ProbeOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- domain.ProbeOutcome{
					Result: domain.ResultTransportError,
					Detail: fmt.Sprintf("probe panicked: %v", p),
				}
			}
		}()
		done <- r.Checker.Check(ctx, t)
	}()

	var o domain.ProbeOutcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o = domain.ProbeOutcome{
			Result: domain.ResultConnectTimeout,
			Detail: "probe did not finish before its deadline",
		}
	}
	o.Target = t
	if o.Latency == 0 {
		o.Latency = time.Since(start)
	}

	r.Logger.Info("probe_done",
		zap.String("mode", string(t.Mode)),
		zap.String("url", t.URL()),
		zap.String("result", string(o.Result)),
		zap.Int("status", o.StatusCode),
		zap.Duration("latency", o.Latency),
		zap.String("detail", o.Detail),
	)
	if r.Recorder != nil {
		r.Recorder.Observe(o)
	}
	return o
}

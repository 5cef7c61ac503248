package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/domain"
	"github.com/hamed0406/reachcheck/internal/notify"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// Alerter notifies when the severity of consecutive runs changes.
type Alerter struct {
	notifier notify.Notifier
	cfg      AlerterConfig
	clock    clock.Clock

	mu         sync.Mutex
	last       *domain.Severity
	lastSentAt time.Time
}

func NewAlerter(n notify.Notifier, cfg AlerterConfig, clk clock.Clock) *Alerter {
	if clk == nil {
		clk = clock.New()
	}
	return &Alerter{notifier: n, cfg: cfg, clock: clk}
}

func (a *Alerter) Observe(ctx context.Context, rep diagnose.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	prev := a.last
	stateChanged := prev == nil || *prev != rep.Severity
	healthy := rep.Severity == domain.SeverityOK

	// Cooldown only applies to problem alerts.
	cooled := a.lastSentAt.IsZero() || now.Sub(a.lastSentAt) >= a.cfg.Cooldown

	sev := rep.Severity
	a.last = &sev

	switch {
	case stateChanged && !healthy && cooled:
		a.lastSentAt = now
		_, err := notify.Report(ctx, a.notifier, rep)
		return err
	case stateChanged && healthy && prev != nil && a.cfg.AlertOnRecovery:
		alert := notify.Summarize(rep)
		alert.Title = fmt.Sprintf("reachcheck: recovered on port %d", rep.Port)
		alert.Text = fmt.Sprintf("was: %s\n%s", *prev, alert.Text)
		return notify.Deliver(ctx, a.notifier, alert)
	}
	return nil
}

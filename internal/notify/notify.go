package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/domain"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Alert is a report notification with its verdict as separate fields.
type Alert struct {
	Title     string
	Text      string
	Severity  domain.Severity
	Diagnosis domain.Diagnosis
	Primary   domain.AddressingMode
	Port      int
	RunID     string
}

// AlertSender is implemented by notifiers that can carry Alert fields
// natively.
type AlertSender interface {
	SendAlert(ctx context.Context, a Alert) error
}

// Deliver sends a through n, as fields when n supports them.
func Deliver(ctx context.Context, n Notifier, a Alert) error {
	if as, ok := n.(AlertSender); ok {
		return as.SendAlert(ctx, a)
	}
	return n.Send(ctx, a.Title, a.Text)
}

type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var errs error
	for _, n := range m {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, n.Send(ctx, title, text))
	}
	return errs
}

func (m Multi) SendAlert(ctx context.Context, a Alert) error {
	var errs error
	for _, n := range m {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, Deliver(ctx, n, a))
	}
	return errs
}

// Summarize builds the alert for rep.
func Summarize(rep diagnose.Report) Alert {
	rec := rep.Recommendation
	a := Alert{
		Title:     fmt.Sprintf("reachcheck: %s on port %d", rep.Severity, rep.Port),
		Severity:  rep.Severity,
		Diagnosis: rec.Diagnosis,
		Primary:   rec.Primary,
		Port:      rep.Port,
		RunID:     rep.RunID,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "diagnosis: %s\n", rec.Diagnosis)
	if rec.Primary != "" {
		fmt.Fprintf(&b, "use: %s\n", rec.Primary)
	}
	for _, o := range rep.Outcomes {
		if !o.Reached() {
			fmt.Fprintf(&b, "• %s %s: %s\n", o.Mode(), o.Target.URL(), o.Result)
		}
	}
	if rec.Remedy != domain.RemedyNone {
		fmt.Fprintf(&b, "next step: %s\n", rec.Remedy.Describe())
	}
	fmt.Fprintf(&b, "run %s", rep.RunID)
	a.Text = b.String()
	return a
}

// Report sends a summary of rep when its severity is not ok. It reports
// whether anything was sent.
func Report(ctx context.Context, n Notifier, rep diagnose.Report) (bool, error) {
	if n == nil || rep.Severity == domain.SeverityOK {
		return false, nil
	}
	if err := Deliver(ctx, n, Summarize(rep)); err != nil {
		return false, err
	}
	return true, nil
}

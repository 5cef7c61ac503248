package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// RetryChecker re-runs refused or transport-failed checks, which are often a
// service still coming up. Timeouts and DNS failures are not retried: a
// second attempt would only double the wait for the same answer.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func retryable(k domain.ResultKind) bool {
	return k == domain.ResultConnectionRefused || k == domain.ResultTransportError
}

func (r *RetryChecker) Check(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last domain.ProbeOutcome
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if !retryable(last.Result) {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(r.Backoff):
		}
	}
	if attempts > 1 {
		last.Detail = fmt.Sprintf("%s (after %d attempts)", last.Detail, attempts)
	}
	return last
}

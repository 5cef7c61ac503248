// Package probe checks whether the service answers on each addressing mode.
//
// Every check produces a domain.ProbeOutcome. Unreachability is an ordinary
// result: checkers never return errors, and Runner always yields exactly one
// outcome per target, in target order, however individual checks fail.
package probe

import (
	"context"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// Checker performs a single liveness check against one target.
type Checker interface {
	Check(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome

func (f CheckerFunc) Check(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome {
	return f(ctx, target)
}

// ByOrigin routes host-originated modes to Host and container-originated
// modes to Container.
type ByOrigin struct {
	Host      Checker
	Container Checker
}

func (b ByOrigin) Check(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome {
	if target.Mode.ContainerOriginated() && b.Container != nil {
		return b.Container.Check(ctx, target)
	}
	return b.Host.Check(ctx, target)
}

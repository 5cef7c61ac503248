// Package firewall keeps a host packet-filter rule in place so container
// traffic can reach the service.
//
// EnsureAllow is idempotent: it queries before it mutates and re-queries
// after, so a success always means the rule was seen in the rule table.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/hamed0406/reachcheck/internal/domain"
)

type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeAlreadyPresent Outcome = "already_present"
	OutcomeAdded          Outcome = "added"
	OutcomeVerified       Outcome = "verified"
	OutcomeInconclusive   Outcome = "inconclusive"
	// OutcomeIneffective means the rule is in place but the empirical check
	// still could not reach the service.
	OutcomeIneffective Outcome = "ineffective"
)

type Result struct {
	Outcome Outcome             `json:"outcome"`
	Backend string              `json:"backend,omitempty"`
	Rule    domain.FirewallRule `json:"rule"`
	Detail  string              `json:"detail,omitempty"`
}

// Verifier empirically checks that a rule lets traffic through. An error
// wrapping ErrStillBlocked means the check ran and failed; any other error
// means it could not run.
type Verifier interface {
	Verify(ctx context.Context, rule domain.FirewallRule) error
}

var geteuid = unix.Geteuid

// Provisioner serializes its own calls. Query-then-add is not atomic
// against other processes editing the same table.
type Provisioner struct {
	Backend  Backend
	Verifier Verifier
	Logger   *zap.Logger
	// Geteuid reports the effective uid; nil uses the process's own.
	Geteuid func() int

	mu sync.Mutex
}

func NewProvisioner(backend Backend, verifier Verifier, logger *zap.Logger) *Provisioner {
	return &Provisioner{Backend: backend, Verifier: verifier, Logger: logger}
}

func validate(sourceCIDR string, destPort int) error {
	if _, _, err := net.ParseCIDR(sourceCIDR); err != nil && net.ParseIP(sourceCIDR) == nil {
		return fmt.Errorf("%w: source %q is not a CIDR or IP", ErrInvalidRule, sourceCIDR)
	}
	if destPort < 0 || destPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidRule, destPort)
	}
	return nil
}

func findEquivalent(rules []domain.FirewallRule, want domain.FirewallRule) (domain.FirewallRule, bool) {
	for _, r := range rules {
		if r.Equivalent(want) {
			return r, true
		}
	}
	return domain.FirewallRule{}, false
}

// EnsureAllow makes sure sourceCIDR may reach destPort (0 for any port).
func (p *Provisioner) EnsureAllow(ctx context.Context, sourceCIDR string, destPort int, comment string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	want := domain.FirewallRule{
		SourceCIDR: domain.NormalizeCIDR(sourceCIDR),
		DestPort:   destPort,
		Comment:    comment,
	}
	res := Result{Rule: want}
	log := p.Logger.With(zap.String("rule", want.String()))

	if err := validate(sourceCIDR, destPort); err != nil {
		return res, &ProvisionError{Op: "validate", Err: err, Fatal: true}
	}
	if p.Backend == nil {
		res.Outcome, res.Detail = OutcomeSkipped, "no packet filter backend"
		log.Info("firewall_skipped", zap.String("reason", res.Detail))
		return res, nil
	}
	res.Backend = p.Backend.Name()
	log = log.With(zap.String("backend", res.Backend))

	st, err := p.Backend.Status(ctx)
	if err != nil {
		return res, &ProvisionError{Op: "status", Err: err, Fatal: errors.Is(err, ErrPermission)}
	}
	if !st.Available || !st.Active {
		res.Outcome, res.Detail = OutcomeSkipped, fmt.Sprintf("%s not active", res.Backend)
		if st.Detail != "" {
			res.Detail += ": " + st.Detail
		}
		log.Info("firewall_skipped", zap.String("reason", res.Detail))
		return res, nil
	}

	rules, err := p.Backend.QueryRules(ctx)
	if err != nil {
		return res, &ProvisionError{Op: "query", Err: err, Fatal: errors.Is(err, ErrPermission)}
	}
	if existing, ok := findEquivalent(rules, want); ok {
		res.Outcome, res.Rule = OutcomeAlreadyPresent, existing
		log.Info("firewall_rule_present")
		return res, nil
	}

	euid := geteuid()
	if p.Geteuid != nil {
		euid = p.Geteuid()
	}
	if euid != 0 {
		return res, &ProvisionError{
			Op:    "add",
			Err:   fmt.Errorf("%w: running as uid %d, root required", ErrPermission, euid),
			Fatal: true,
		}
	}
	if err := p.Backend.AddRule(ctx, want); err != nil {
		return res, &ProvisionError{Op: "add", Err: err, Fatal: errors.Is(err, ErrPermission)}
	}

	rules, err = p.Backend.QueryRules(ctx)
	if err != nil {
		return res, &ProvisionError{Op: "requery", Err: err}
	}
	added, ok := findEquivalent(rules, want)
	if !ok {
		return res, &ProvisionError{Op: "requery", Err: ErrNotVerified}
	}
	res.Rule = added
	res.Outcome = OutcomeAdded
	log.Info("firewall_rule_added")

	if p.Verifier == nil {
		return res, nil
	}
	switch err := p.Verifier.Verify(ctx, added); {
	case err == nil:
		res.Outcome = OutcomeVerified
	case errors.Is(err, ErrStillBlocked):
		res.Outcome, res.Detail = OutcomeIneffective, err.Error()
		log.Warn("firewall_rule_ineffective", zap.Error(err))
	default:
		res.Outcome, res.Detail = OutcomeInconclusive, err.Error()
		log.Warn("firewall_verify_inconclusive", zap.Error(err))
	}
	return res, nil
}

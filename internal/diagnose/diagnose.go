// Package diagnose runs one complete diagnostic: resolve addresses, inspect
// the binding, probe every addressing mode, recommend, and provision the
// firewall when that is the remedy and it is enabled.
package diagnose

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/config"
	"github.com/hamed0406/reachcheck/internal/domain"
	"github.com/hamed0406/reachcheck/internal/firewall"
	"github.com/hamed0406/reachcheck/internal/hostaddr"
	"github.com/hamed0406/reachcheck/internal/recommend"
)

type AddressResolver interface {
	Resolve(ctx context.Context) hostaddr.Addresses
}

type BindingInspector interface {
	Inspect(port int) domain.BindingState
}

type ProbeRunner interface {
	Run(ctx context.Context, targets []domain.ProbeTarget) []domain.ProbeOutcome
}

type FirewallProvisioner interface {
	EnsureAllow(ctx context.Context, sourceCIDR string, destPort int, comment string) (firewall.Result, error)
}

// RunRecorder is satisfied by *metrics.Metrics.
type RunRecorder interface {
	RecordRun(d domain.Diagnosis)
	RecordProvision(outcome string)
}

type ProvisionReport struct {
	Result      firewall.Result `json:"result"`
	Error       string          `json:"error,omitempty"`
	Recoverable bool            `json:"recoverable,omitempty"`
}

// Report is everything one run found. It is not persisted.
type Report struct {
	RunID          string                `json:"run_id"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
	Port           int                   `json:"port"`
	Addresses      hostaddr.Addresses    `json:"addresses"`
	Binding        domain.BindingState   `json:"binding"`
	Outcomes       []domain.ProbeOutcome `json:"outcomes"`
	Recommendation domain.Recommendation `json:"recommendation"`
	Severity       domain.Severity       `json:"severity"`
	Provision      *ProvisionReport      `json:"provision,omitempty"`
}

func (r Report) ExitCode() int { return r.Severity.ExitCode() }

type Diagnoser struct {
	Config      config.Config
	Resolver    AddressResolver
	Inspector   BindingInspector
	Runner      ProbeRunner
	Provisioner FirewallProvisioner
	Recorder    RunRecorder
	Clock       clock.Clock
	Logger      *zap.Logger

	// Runs start throwaway containers and may change the firewall; one at
	// a time.
	mu sync.Mutex
}

// Run never fails; every problem it meets ends up in the Report. Concurrent
// calls are serialized.
func (d *Diagnoser) Run(ctx context.Context) Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}
	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: clk.Now().UTC(),
		Port:      d.Config.Port,
	}
	log := d.Logger.With(zap.String("run_id", rep.RunID), zap.Int("port", rep.Port))
	log.Info("diagnose_start")

	rep.Addresses = d.Resolver.Resolve(ctx)
	rep.Binding = d.Inspector.Inspect(d.Config.Port)
	d.probe(ctx, &rep)

	if d.Config.AutoProvision && rep.Recommendation.Remedy == domain.RemedyProvisionFirewall && d.Provisioner != nil {
		rep.Provision = d.provision(ctx, log, rep.Addresses.BridgeSubnet)
		switch rep.Provision.Result.Outcome {
		case firewall.OutcomeAdded, firewall.OutcomeVerified, firewall.OutcomeInconclusive:
			log.Info("diagnose_reprobe")
			d.probe(ctx, &rep)
		}
	}

	rep.FinishedAt = clk.Now().UTC()
	if d.Recorder != nil {
		d.Recorder.RecordRun(rep.Recommendation.Diagnosis)
	}
	log.Info("diagnose_done",
		zap.String("diagnosis", string(rep.Recommendation.Diagnosis)),
		zap.String("primary", string(rep.Recommendation.Primary)),
		zap.String("severity", string(rep.Severity)),
		zap.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
	)
	return rep
}

func (d *Diagnoser) probe(ctx context.Context, rep *Report) {
	targets := hostaddr.Targets(rep.Addresses, d.Config)
	rep.Outcomes = d.Runner.Run(ctx, targets)
	rep.Recommendation = recommend.Recommend(rep.Binding, rep.Outcomes)
	rep.Severity = recommend.SeverityOf(rep.Recommendation, rep.Outcomes)
}

func (d *Diagnoser) provision(ctx context.Context, log *zap.Logger, subnet string) *ProvisionReport {
	res, err := d.Provisioner.EnsureAllow(ctx, subnet, d.Config.Port, d.Config.FirewallComment)
	pr := &ProvisionReport{Result: res}
	if err != nil {
		pr.Error = err.Error()
		var pe *firewall.ProvisionError
		if errors.As(err, &pe) {
			pr.Recoverable = pe.Recoverable()
		}
		log.Warn("firewall_provision_failed", zap.Error(err), zap.Bool("recoverable", pr.Recoverable))
	}
	if d.Recorder != nil {
		d.Recorder.RecordProvision(string(res.Outcome))
	}
	return pr
}

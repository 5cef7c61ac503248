package diagnose

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/config"
	"github.com/hamed0406/reachcheck/internal/domain"
	"github.com/hamed0406/reachcheck/internal/firewall"
	"github.com/hamed0406/reachcheck/internal/hostaddr"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(context.Context) hostaddr.Addresses {
	return hostaddr.Addresses{
		LANIP:            "192.168.1.20",
		LANSource:        "default-route",
		BridgeGateway:    "172.17.0.1",
		BridgeSubnet:     "172.17.0.0/16",
		InternalHostname: "host.docker.internal",
	}
}

type fakeInspector domain.BindingState

func (f fakeInspector) Inspect(int) domain.BindingState { return domain.BindingState(f) }

// fakeRunner answers with results per mode; after opened is set, container
// modes succeed too.
type fakeRunner struct {
	results map[domain.AddressingMode]domain.ResultKind
	opened  bool
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, targets []domain.ProbeTarget) []domain.ProbeOutcome {
	f.calls++
	out := make([]domain.ProbeOutcome, len(targets))
	for i, t := range targets {
		r := f.results[t.Mode]
		if f.opened && t.Mode.ContainerOriginated() {
			r = domain.ResultSuccess
		}
		out[i] = domain.ProbeOutcome{Target: t, Result: r}
		if r == domain.ResultSuccess {
			out[i].StatusCode = 200
		}
	}
	return out
}

type fakeProvisioner struct {
	runner *fakeRunner
	calls  []string
	port   int
	err    error
}

func (f *fakeProvisioner) EnsureAllow(_ context.Context, cidr string, port int, _ string) (firewall.Result, error) {
	f.calls = append(f.calls, cidr)
	f.port = port
	if f.err != nil {
		return firewall.Result{}, f.err
	}
	f.runner.opened = true
	return firewall.Result{Outcome: firewall.OutcomeVerified, Backend: "mem"}, nil
}

type countingRecorder struct {
	runs       []domain.Diagnosis
	provisions []string
}

func (c *countingRecorder) RecordRun(d domain.Diagnosis) { c.runs = append(c.runs, d) }
func (c *countingRecorder) RecordProvision(outcome string) { c.provisions = append(c.provisions, outcome) }

var isolated = map[domain.AddressingMode]domain.ResultKind{
	domain.ModeLoopback:               domain.ResultSuccess,
	domain.ModeLANIP:                  domain.ResultSuccess,
	domain.ModeDockerBridgeGateway:    domain.ResultConnectionRefused,
	domain.ModeDockerInternalHostname: domain.ResultConnectionRefused,
}

func newDiagnoser(cfg config.Config, runner *fakeRunner, scope domain.BindingScope) (*Diagnoser, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	return &Diagnoser{
		Config:    cfg,
		Resolver:  fakeResolver{},
		Inspector: fakeInspector{ListenAddress: "0.0.0.0", Scope: scope},
		Runner:    runner,
		Clock:     mock,
		Logger:    zap.NewNop(),
	}, mock
}

func TestRun_ReportsIsolationWithoutProvisioning(t *testing.T) {
	runner := &fakeRunner{results: isolated}
	d, mock := newDiagnoser(config.Defaults(), runner, domain.ScopeWildcard)
	prov := &fakeProvisioner{runner: runner}
	d.Provisioner = prov
	rec := &countingRecorder{}
	d.Recorder = rec

	rep := d.Run(context.Background())

	_, err := uuid.Parse(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, mock.Now().UTC(), rep.StartedAt)
	assert.Equal(t, 8000, rep.Port)
	require.Len(t, rep.Outcomes, 4)
	assert.Equal(t, domain.DiagnosisContainerNetworkIsolation, rep.Recommendation.Diagnosis)
	assert.Equal(t, domain.SeverityDegraded, rep.Severity)
	assert.Equal(t, 1, rep.ExitCode())
	assert.Nil(t, rep.Provision, "auto provisioning is off by default")
	assert.Empty(t, prov.calls)
	assert.Equal(t, []domain.Diagnosis{domain.DiagnosisContainerNetworkIsolation}, rec.runs)
}

func TestRun_AutoProvisionsBridgeSubnetAndReprobes(t *testing.T) {
	cfg := config.Defaults()
	cfg.AutoProvision = true
	runner := &fakeRunner{results: isolated}
	d, _ := newDiagnoser(cfg, runner, domain.ScopeWildcard)
	prov := &fakeProvisioner{runner: runner}
	d.Provisioner = prov
	rec := &countingRecorder{}
	d.Recorder = rec

	rep := d.Run(context.Background())

	assert.Equal(t, []string{"172.17.0.0/16"}, prov.calls)
	assert.Equal(t, 8000, prov.port)
	require.NotNil(t, rep.Provision)
	assert.Equal(t, firewall.OutcomeVerified, rep.Provision.Result.Outcome)
	assert.Equal(t, 2, runner.calls)
	assert.Equal(t, domain.DiagnosisReachable, rep.Recommendation.Diagnosis)
	assert.Equal(t, domain.ModeDockerInternalHostname, rep.Recommendation.Primary)
	assert.Equal(t, domain.SeverityOK, rep.Severity)
	assert.Equal(t, []string{"verified"}, rec.provisions)
}

func TestRun_ProvisionFailureIsReported(t *testing.T) {
	cfg := config.Defaults()
	cfg.AutoProvision = true
	runner := &fakeRunner{results: isolated}
	d, _ := newDiagnoser(cfg, runner, domain.ScopeWildcard)
	d.Provisioner = &fakeProvisioner{runner: runner, err: &firewall.ProvisionError{Op: "add", Err: firewall.ErrPermission, Fatal: true}}

	rep := d.Run(context.Background())
	require.NotNil(t, rep.Provision)
	assert.Contains(t, rep.Provision.Error, "insufficient privilege")
	assert.False(t, rep.Provision.Recoverable)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, domain.DiagnosisContainerNetworkIsolation, rep.Recommendation.Diagnosis)
}

func TestRun_UnboundIsUnreachableSeverity(t *testing.T) {
	runner := &fakeRunner{results: map[domain.AddressingMode]domain.ResultKind{}}
	d, _ := newDiagnoser(config.Defaults(), runner, domain.ScopeUnbound)
	rep := d.Run(context.Background())
	assert.Equal(t, domain.DiagnosisServiceNotRunning, rep.Recommendation.Diagnosis)
	assert.Equal(t, 2, rep.ExitCode())
}

package diagnose

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/binding"
	"github.com/hamed0406/reachcheck/internal/config"
	"github.com/hamed0406/reachcheck/internal/container"
	"github.com/hamed0406/reachcheck/internal/firewall"
	"github.com/hamed0406/reachcheck/internal/hostaddr"
	"github.com/hamed0406/reachcheck/internal/metrics"
	"github.com/hamed0406/reachcheck/internal/probe"
)

// NewChecker builds the checker used for every target: host modes are
// probed directly, container modes from a throwaway container, both with
// retries.
func NewChecker(cfg config.Config, runtime probe.Runtime) probe.Checker {
	hc := probe.NewHTTPChecker(cfg.MaxTimeout())
	hc.APIKey, hc.AuthPath = cfg.APIKey, cfg.AuthPath
	hc.DNS = probe.NewDNSChecker()

	var addHosts []string
	if cfg.AddHostGateway {
		addHosts = append(addHosts, container.HostGatewayAlias(cfg.InternalHostname))
	}
	cc := &probe.ContainerChecker{
		Runtime:  runtime,
		Image:    cfg.ProbeImage,
		AddHosts: addHosts,
		APIKey:   cfg.APIKey,
		AuthPath: cfg.AuthPath,
		Timeout:  cfg.MaxTimeout(),
	}
	retry := func(c probe.Checker) probe.Checker {
		return &probe.RetryChecker{Inner: c, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}
	return probe.ByOrigin{Host: retry(hc), Container: retry(cc)}
}

// NewProvisioner selects the configured firewall backend. With
// VerifyProvision set, new rules are checked from a throwaway container
// against the bridge gateway and the internal hostname.
func NewProvisioner(ctx context.Context, cfg config.Config, addrs hostaddr.Addresses, runtime firewall.Runtime, logger *zap.Logger) (*firewall.Provisioner, error) {
	backend, err := firewall.Detect(ctx, cfg.FirewallBackend, logger)
	if err != nil {
		return nil, err
	}
	var verifier firewall.Verifier
	if cfg.VerifyProvision {
		var addHosts []string
		if cfg.AddHostGateway {
			addHosts = append(addHosts, container.HostGatewayAlias(cfg.InternalHostname))
		}
		verifier = &firewall.ContainerVerifier{
			Runtime:  runtime,
			Image:    cfg.ProbeImage,
			Hosts:    []string{addrs.BridgeGateway, addrs.InternalHostname},
			AddHosts: addHosts,
			Port:     cfg.Port,
			Path:     cfg.LivenessPath,
			Timeout:  cfg.Timeouts.BridgeGateway,
		}
	}
	return firewall.NewProvisioner(backend, verifier, logger), nil
}

// New wires a Diagnoser against the real host. m may be nil. The
// returned Diagnoser's Provisioner is meant to be shared with any other
// caller that changes the firewall.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (*Diagnoser, error) {
	runtime := container.NewDockerCLI(cfg.ContainerRuntime, logger)
	resolver := hostaddr.NewResolver(logger, cfg)

	runner := probe.NewRunner(NewChecker(cfg, runtime), cfg.ProbeConcurrency, logger)
	d := &Diagnoser{
		Config:    cfg,
		Resolver:  resolver,
		Inspector: binding.NewInspector(logger),
		Runner:    runner,
		Clock:     clock.New(),
		Logger:    logger,
	}
	if m != nil {
		runner.Recorder = m
		d.Recorder = m
	}
	// One provisioner per process; every caller that changes the firewall
	// shares it.
	if cfg.AutoProvision || cfg.FirewallBackend != "none" {
		prov, err := NewProvisioner(ctx, cfg, resolver.Resolve(ctx), runtime, logger)
		if err != nil {
			return nil, err
		}
		d.Provisioner = prov
	}
	return d, nil
}

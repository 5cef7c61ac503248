package firewall

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/reachcheck/internal/container"
	"github.com/hamed0406/reachcheck/internal/domain"
)

// Runtime runs a throwaway client container.
type Runtime interface {
	RunEphemeral(ctx context.Context, spec container.EphemeralSpec) (container.RunResult, error)
}

// ContainerVerifier asks a fresh container to fetch the liveness path on
// each of Hosts. One HTTP response from any host is enough.
type ContainerVerifier struct {
	Runtime  Runtime
	Image    string
	Hosts    []string
	AddHosts []string
	Port     int
	Path     string
	Timeout  time.Duration
}

func (v *ContainerVerifier) Verify(ctx context.Context, rule domain.FirewallRule) error {
	port := rule.DestPort
	if port == 0 {
		port = v.Port
	}
	var blocked, unrunnable error
	for _, host := range v.Hosts {
		url := fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), v.Path)
		res, err := v.Runtime.RunEphemeral(ctx, container.CurlSpec(v.Image, url, v.Timeout, v.AddHosts))
		if err != nil {
			unrunnable = multierr.Append(unrunnable, fmt.Errorf("%s: %w", host, err))
			continue
		}
		if res.ExitCode == container.CurlOK {
			if _, status, perr := container.ParseCurlOutput(res.Output); perr == nil && status > 0 {
				return nil
			}
		}
		blocked = multierr.Append(blocked, fmt.Errorf("%s: curl exit %d", host, res.ExitCode))
	}
	if blocked != nil {
		return fmt.Errorf("%w: %v", ErrStillBlocked, multierr.Combine(blocked, unrunnable))
	}
	if unrunnable != nil {
		return unrunnable
	}
	return fmt.Errorf("no verification hosts configured")
}

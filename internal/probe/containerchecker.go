package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/reachcheck/internal/container"
	"github.com/hamed0406/reachcheck/internal/domain"
)

// Runtime runs a throwaway client container.
type Runtime interface {
	RunEphemeral(ctx context.Context, spec container.EphemeralSpec) (container.RunResult, error)
}

// ContainerChecker probes from inside a fresh container on the default
// bridge, the way a containerized client would reach the service.
type ContainerChecker struct {
	Runtime Runtime
	Image   string
	// AddHosts are passed as --add-host so host aliases resolve on Linux.
	AddHosts []string
	APIKey   string
	AuthPath string
	Timeout  time.Duration
}

func (c *ContainerChecker) timeout(target domain.ProbeTarget) time.Duration {
	if target.Timeout > 0 {
		return target.Timeout
	}
	return c.Timeout
}

func (c *ContainerChecker) Check(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome {
	out := domain.ProbeOutcome{Target: target}
	start := time.Now()

	spec := container.CurlSpec(c.Image, target.URL(), c.timeout(target), c.AddHosts)
	res, err := c.Runtime.RunEphemeral(ctx, spec)
	out.Latency = time.Since(start)
	if err != nil {
		out.Result = domain.ResultTransportError
		if !errors.Is(err, container.ErrRuntimeUnavailable) && ctx.Err() != nil {
			out.Result = domain.ResultConnectTimeout
		}
		out.Detail = err.Error()
		return out
	}

	out.Result = ClassifyCurl(res.ExitCode)
	if out.Result != domain.ResultSuccess {
		out.Detail = fmt.Sprintf("curl exit %d", res.ExitCode)
		if msg := strings.TrimSpace(res.Output); msg != "" {
			out.Detail += ": " + msg
		}
		return out
	}

	body, status, err := container.ParseCurlOutput(res.Output)
	if err != nil || status == 0 {
		out.Result = domain.ResultTransportError
		if err != nil {
			out.Detail = err.Error()
		} else {
			out.Detail = "no HTTP response"
		}
		return out
	}
	out.StatusCode = status
	out.Detail = loadingDetail(status, body)

	if c.APIKey != "" && c.AuthPath != "" {
		out.Auth = c.checkAuth(ctx, target)
	}
	return out
}

func (c *ContainerChecker) checkAuth(ctx context.Context, target domain.ProbeTarget) *domain.AuthCheck {
	a := &domain.AuthCheck{Path: c.AuthPath}
	spec := container.CurlSpec(c.Image, target.URLFor(c.AuthPath), c.timeout(target), c.AddHosts,
		"Authorization: Bearer "+c.APIKey)
	res, err := c.Runtime.RunEphemeral(ctx, spec)
	if err != nil {
		a.Detail = err.Error()
		return a
	}
	if kind := ClassifyCurl(res.ExitCode); kind != domain.ResultSuccess {
		a.Detail = string(kind)
		return a
	}
	_, status, err := container.ParseCurlOutput(res.Output)
	if err != nil {
		a.Detail = err.Error()
		return a
	}
	a.StatusCode = status
	a.OK = status >= 200 && status < 300
	if status == 401 || status == 403 {
		a.Detail = "api key rejected"
	}
	return a
}

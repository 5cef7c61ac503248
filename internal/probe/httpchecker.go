package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// maxBody bounds how much of a response is read for loading detection.
const maxBody = 4 << 10

// dnsAnnotateBudget is the least time a DNS annotation gets once the target
// deadline has passed. It stays below the Runner's default Grace.
const dnsAnnotateBudget = time.Second

// HTTPChecker probes from the host: a TCP connect, then a GET of the
// liveness path. With APIKey and AuthPath set, a reachable target also gets
// an authenticated request whose result lands in Outcome.Auth.
type HTTPChecker struct {
	Client   *http.Client
	Dialer   *net.Dialer
	Timeout  time.Duration
	APIKey   string
	AuthPath string
	// DNS annotates dns_resolution_failure outcomes when set.
	DNS *DNSChecker
}

// NewHTTPChecker uses timeout for targets that carry none of their own.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	dialer := &net.Dialer{}
	return &HTTPChecker{
		Dialer:  dialer,
		Timeout: timeout,
		Client: &http.Client{
			Transport: &http.Transport{
				DialContext:       dialer.DialContext,
				DisableKeepAlives: true,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target domain.ProbeTarget) domain.ProbeOutcome {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = h.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := domain.ProbeOutcome{Target: target}
	start := time.Now()

	conn, err := h.Dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		out.Latency = time.Since(start)
		return h.failed(ctx, out, err)
	}
	_ = conn.Close()

	status, body, err := h.get(ctx, target.URL(), "")
	out.Latency = time.Since(start)
	if err != nil {
		return h.failed(ctx, out, err)
	}
	out.Result = domain.ResultSuccess
	out.StatusCode = status
	out.Detail = loadingDetail(status, body)

	if h.APIKey != "" && h.AuthPath != "" {
		out.Auth = h.checkAuth(ctx, target)
	}
	return out
}

func (h *HTTPChecker) failed(ctx context.Context, out domain.ProbeOutcome, err error) domain.ProbeOutcome {
	out.Result = Classify(err)
	out.Detail = err.Error()
	if out.Result == domain.ResultDNSFailure && h.DNS != nil {
		actx, cancel := annotateContext(ctx)
		st := h.DNS.CheckDNS(actx, out.Target.Host)
		cancel()
		out.Detail = fmt.Sprintf("%s: %s", st.Class, out.Detail)
	}
	return out
}

// annotateContext outlives ctx's cancellation but is bounded by whatever is
// left of its deadline, or dnsAnnotateBudget when less remains.
func annotateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := dnsAnnotateBudget
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > budget {
			budget = rem
		}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), budget)
}

func (h *HTTPChecker) get(ctx context.Context, url, bearer string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return resp.StatusCode, string(b), nil
}

func (h *HTTPChecker) checkAuth(ctx context.Context, target domain.ProbeTarget) *domain.AuthCheck {
	a := &domain.AuthCheck{Path: h.AuthPath}
	status, _, err := h.get(ctx, target.URLFor(h.AuthPath), h.APIKey)
	if err != nil {
		a.Detail = string(Classify(err))
		return a
	}
	a.StatusCode = status
	a.OK = status >= 200 && status < 300
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		a.Detail = "api key rejected"
	}
	return a
}

package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/reachcheck/internal/domain"
)

func targetFor(t *testing.T, rawURL string, timeout time.Duration) domain.ProbeTarget {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	port, _ := strconv.Atoi(u.Port())
	return domain.ProbeTarget{
		Mode:    domain.ModeLoopback,
		Host:    u.Hostname(),
		Port:    port,
		Path:    "/health",
		Timeout: timeout,
	}
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Check(context.Background(), targetFor(t, s.URL, time.Second))
	if out.Result != domain.ResultSuccess || !out.Healthy() {
		t.Fatalf("want healthy success, got %+v", out)
	}
	if out.StatusCode != 200 {
		t.Fatalf("want status 200, got %d", out.StatusCode)
	}
	if out.Latency <= 0 {
		t.Fatalf("latency should be > 0, got %v", out.Latency)
	}
	if out.Auth != nil {
		t.Fatalf("no api key configured, auth should be nil")
	}
}

func TestHTTPChecker_Status500IsReachedButUnhealthy(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), targetFor(t, s.URL, time.Second))
	if !out.Reached() || out.Healthy() {
		t.Fatalf("want reached but unhealthy, got %+v", out)
	}
	if out.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.StatusCode)
	}
}

func TestHTTPChecker_LoadingDetected(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Model is loading"}`, http.StatusServiceUnavailable)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), targetFor(t, s.URL, time.Second))
	if out.StatusCode != 503 || out.Detail != "loading" {
		t.Fatalf("want 503 loading, got %+v", out)
	}
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := "http://" + ln.Addr().String()
	ln.Close()

	out := NewHTTPChecker(time.Second).Check(context.Background(), targetFor(t, addr, time.Second))
	if out.Result != domain.ResultConnectionRefused {
		t.Fatalf("want connection_refused, got %+v", out)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on transport error, got %d", out.StatusCode)
	}
}

func TestHTTPChecker_TimeoutClassified(t *testing.T) {
	// Server sleeps longer than the target timeout
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	out := NewHTTPChecker(time.Second).Check(context.Background(), targetFor(t, s.URL, 50*time.Millisecond))
	if out.Result != domain.ResultConnectTimeout {
		t.Fatalf("want connect_timeout, got %+v", out)
	}
	if out.Detail == "" {
		t.Fatalf("want non-empty detail")
	}
}

func TestHTTPChecker_AuthenticatedVariant(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(200)
		case "/v1/models":
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"data":[]}`))
		}
	}))
	defer s.Close()

	chk := NewHTTPChecker(time.Second)
	chk.AuthPath = "/v1/models"

	chk.APIKey = "good"
	out := chk.Check(context.Background(), targetFor(t, s.URL, time.Second))
	if out.Auth == nil || !out.Auth.OK || out.Auth.StatusCode != 200 {
		t.Fatalf("want auth ok, got %+v", out.Auth)
	}

	chk.APIKey = "bad"
	out = chk.Check(context.Background(), targetFor(t, s.URL, time.Second))
	if out.Auth == nil || out.Auth.OK || out.Auth.StatusCode != 401 {
		t.Fatalf("want auth rejected, got %+v", out.Auth)
	}
	if !strings.Contains(out.Auth.Detail, "rejected") {
		t.Fatalf("want rejection detail, got %q", out.Auth.Detail)
	}
	if !out.Healthy() {
		t.Fatalf("auth failure must not change liveness result: %+v", out)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want domain.ResultKind
	}{
		{nil, domain.ResultSuccess},
		{&net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}, domain.ResultDNSFailure},
		{context.DeadlineExceeded, domain.ResultConnectTimeout},
		{&net.OpError{Op: "dial", Err: &net.DNSError{Err: "timeout", IsTimeout: true}}, domain.ResultDNSFailure},
		{&url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, domain.ResultConnectTimeout},
		{net.ErrClosed, domain.ResultTransportError},
	}
	for _, c := range cases {
		// Same error twice must classify the same way.
		if got := Classify(c.err); got != c.want || Classify(c.err) != got {
			t.Fatalf("Classify(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

func TestClassifyCurl(t *testing.T) {
	cases := map[int]domain.ResultKind{
		0:  domain.ResultSuccess,
		6:  domain.ResultDNSFailure,
		7:  domain.ResultConnectionRefused,
		28: domain.ResultConnectTimeout,
		52: domain.ResultTransportError,
	}
	for code, want := range cases {
		if got := ClassifyCurl(code); got != want {
			t.Fatalf("ClassifyCurl(%d)=%q want %q", code, got, want)
		}
	}
}

func TestHTTPChecker_DNSAnnotationBoundedAfterDeadline(t *testing.T) {
	// A resolver that accepts queries and never answers.
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer silent.Close()

	h := NewHTTPChecker(time.Second)
	h.DNS = &DNSChecker{Servers: []string{silent.LocalAddr().String()}, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	out := domain.ProbeOutcome{Target: domain.ProbeTarget{Mode: domain.ModeDockerInternalHostname, Host: "svc.test", Port: 8000}}
	start := time.Now()
	out = h.failed(ctx, out, &net.DNSError{Err: "i/o timeout", Name: "svc.test", IsTimeout: true})
	elapsed := time.Since(start)

	if out.Result != domain.ResultDNSFailure {
		t.Fatalf("want dns failure, got %s", out.Result)
	}
	if !strings.HasPrefix(out.Detail, DNSServFail) {
		t.Fatalf("detail should carry the resolver class: %q", out.Detail)
	}
	if elapsed > 2*dnsAnnotateBudget {
		t.Fatalf("annotation ran %v past an expired deadline", elapsed)
	}
}

package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/hamed0406/reachcheck/internal/container"
	"github.com/hamed0406/reachcheck/internal/domain"
)

// Classify maps a raw transport error onto the result taxonomy. The same
// error always yields the same kind.
func Classify(err error) domain.ResultKind {
	if err == nil {
		return domain.ResultSuccess
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ResultDNSFailure
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return domain.ResultConnectTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ResultConnectTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.ResultConnectionRefused
	}
	return domain.ResultTransportError
}

// ClassifyCurl maps the exit code of a containerized curl client.
func ClassifyCurl(exitCode int) domain.ResultKind {
	switch exitCode {
	case container.CurlOK:
		return domain.ResultSuccess
	case container.CurlCouldntResolve:
		return domain.ResultDNSFailure
	case container.CurlCouldntConnect:
		return domain.ResultConnectionRefused
	case container.CurlOperationTimeout:
		return domain.ResultConnectTimeout
	}
	return domain.ResultTransportError
}

// loadingDetail marks a 503 whose body says the service is still starting.
func loadingDetail(status int, body string) string {
	if status != 503 {
		return ""
	}
	b := strings.ToLower(body)
	if strings.Contains(b, "loading") || strings.Contains(b, "initializ") {
		return "loading"
	}
	return ""
}

package container

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// curl exit codes the probes care about.
const (
	CurlOK               = 0
	CurlCouldntResolve   = 6
	CurlCouldntConnect   = 7
	CurlOperationTimeout = 28
)

// HostGatewayAlias maps name to the host through docker's host-gateway keyword.
func HostGatewayAlias(name string) string {
	return name + ":host-gateway"
}

// CurlSpec builds a client that GETs url and prints the body followed by the
// status code on its own line. Headers are passed as "Name: value".
func CurlSpec(image, url string, timeout time.Duration, addHosts []string, headers ...string) EphemeralSpec {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', 1, 64)
	args := []string{"-s", "--connect-timeout", secs, "--max-time", secs, "-w", "\n%{http_code}"}
	for _, h := range headers {
		args = append(args, "-H", h)
	}
	args = append(args, url)
	return EphemeralSpec{Image: image, AddHosts: addHosts, Args: args}
}

// ParseCurlOutput splits output written by a CurlSpec client into body and
// status code.
func ParseCurlOutput(out string) (body string, status int, err error) {
	out = strings.TrimRight(out, "\r\n ")
	idx := strings.LastIndex(out, "\n")
	last := out[idx+1:]
	status, err = strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return "", 0, fmt.Errorf("unexpected curl output %q", last)
	}
	if idx < 0 {
		return "", status, nil
	}
	return out[:idx], status, nil
}

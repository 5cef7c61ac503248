package domain

import "time"

// ResultKind classifies what happened when a target was probed.
type ResultKind string

const (
	ResultSuccess           ResultKind = "success"
	ResultConnectTimeout    ResultKind = "connect_timeout"
	ResultConnectionRefused ResultKind = "connection_refused"
	ResultDNSFailure        ResultKind = "dns_resolution_failure"
	ResultTransportError    ResultKind = "transport_error"
)

// AuthCheck records the authenticated request made after a reachable liveness check.
type AuthCheck struct {
	Path       string `json:"path"`
	StatusCode int    `json:"status_code"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
}

// ProbeOutcome is the classified result for exactly one ProbeTarget.
// StatusCode is only meaningful when Result is ResultSuccess.
type ProbeOutcome struct {
	Target     ProbeTarget   `json:"target"`
	Result     ResultKind    `json:"result"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Detail     string        `json:"detail,omitempty"`
	Auth       *AuthCheck    `json:"auth,omitempty"`
}

// Reached reports whether the service answered over HTTP at all.
// A 503 still proves the network path works.
func (o ProbeOutcome) Reached() bool {
	return o.Result == ResultSuccess
}

func (o ProbeOutcome) Healthy() bool {
	return o.Reached() && o.StatusCode >= 200 && o.StatusCode < 300
}

func (o ProbeOutcome) Mode() AddressingMode {
	return o.Target.Mode
}

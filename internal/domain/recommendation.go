package domain

type Diagnosis string

const (
	DiagnosisReachable                 Diagnosis = "reachable"
	DiagnosisServiceNotRunning         Diagnosis = "service_not_running"
	DiagnosisBindingMisconfigured      Diagnosis = "binding_misconfigured"
	DiagnosisContainerNetworkIsolation Diagnosis = "container_network_isolation"
	DiagnosisServiceUnreachable        Diagnosis = "service_unreachable"
)

type Remedy string

const (
	RemedyNone              Remedy = ""
	RemedyRebindWildcard    Remedy = "rebind_wildcard"
	RemedyProvisionFirewall Remedy = "provision_firewall"
	RemedyVerifyProcess     Remedy = "verify_process"
)

// Describe returns the operator-facing wording of a remedy.
func (r Remedy) Describe() string {
	switch r {
	case RemedyRebindWildcard:
		return "rebind the service to the wildcard interface (0.0.0.0)"
	case RemedyProvisionFirewall:
		return "allow the Docker bridge subnet through the host firewall"
	case RemedyVerifyProcess:
		return "verify the service process is alive before anything else"
	}
	return ""
}

// Recommendation is the decision derived from one diagnostic run.
// Primary is empty when no addressing mode can be recommended.
type Recommendation struct {
	Diagnosis    Diagnosis        `json:"diagnosis"`
	Primary      AddressingMode   `json:"primary,omitempty"`
	Alternatives []AddressingMode `json:"alternatives"`
	Remedy       Remedy           `json:"remedy,omitempty"`
}

// Viable returns the primary followed by the alternatives.
func (r Recommendation) Viable() []AddressingMode {
	if r.Primary == "" {
		return nil
	}
	return append([]AddressingMode{r.Primary}, r.Alternatives...)
}

// Severity aggregates a run for exit codes and notifications.
type Severity string

const (
	SeverityOK          Severity = "ok"
	SeverityDegraded    Severity = "degraded"
	SeverityUnreachable Severity = "unreachable"
)

func (s Severity) ExitCode() int {
	switch s {
	case SeverityOK:
		return 0
	case SeverityDegraded:
		return 1
	}
	return 2
}

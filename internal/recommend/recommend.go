// Package recommend turns a binding state and a set of probe outcomes into
// one diagnosis and a ranked list of addressing modes. It has no I/O.
package recommend

import "github.com/hamed0406/reachcheck/internal/domain"

// Preference ranks addressing modes, best first.
var Preference = []domain.AddressingMode{
	domain.ModeDockerInternalHostname,
	domain.ModeDockerBridgeGateway,
	domain.ModeLANIP,
	domain.ModeLoopback,
}

// Recommend evaluates the rules in fixed priority order. Binding state
// dominates probe evidence. It never fails and does not retain or modify
// its inputs.
func Recommend(b domain.BindingState, outcomes []domain.ProbeOutcome) domain.Recommendation {
	switch b.Scope {
	case domain.ScopeUnbound:
		return domain.Recommendation{
			Diagnosis:    domain.DiagnosisServiceNotRunning,
			Alternatives: []domain.AddressingMode{},
			Remedy:       domain.RemedyVerifyProcess,
		}
	case domain.ScopeLoopbackOnly:
		return domain.Recommendation{
			Diagnosis:    domain.DiagnosisBindingMisconfigured,
			Alternatives: []domain.AddressingMode{},
			Remedy:       domain.RemedyRebindWildcard,
		}
	}

	reached := reachedModes(outcomes)
	ranked := make([]domain.AddressingMode, 0, len(Preference))
	for _, m := range Preference {
		if reached[m] {
			ranked = append(ranked, m)
		}
	}

	rec := domain.Recommendation{Alternatives: []domain.AddressingMode{}}
	if len(ranked) > 0 {
		rec.Primary = ranked[0]
		rec.Alternatives = append(rec.Alternatives, ranked[1:]...)
	}

	hostOK := reached[domain.ModeLoopback] || reached[domain.ModeLANIP]
	containerOK := reached[domain.ModeDockerBridgeGateway] || reached[domain.ModeDockerInternalHostname]
	switch {
	case len(ranked) == 0:
		rec.Diagnosis = domain.DiagnosisServiceUnreachable
		rec.Remedy = domain.RemedyVerifyProcess
	case hostOK && !containerOK:
		rec.Diagnosis = domain.DiagnosisContainerNetworkIsolation
		rec.Remedy = domain.RemedyProvisionFirewall
	default:
		rec.Diagnosis = domain.DiagnosisReachable
	}
	return rec
}

// reachedModes collects modes with at least one successful outcome. An
// outcome whose mode is not a known one is ignored.
func reachedModes(outcomes []domain.ProbeOutcome) map[domain.AddressingMode]bool {
	reached := make(map[domain.AddressingMode]bool, len(outcomes))
	for _, o := range outcomes {
		if o.Reached() && o.Mode().Valid() {
			reached[o.Mode()] = true
		}
	}
	return reached
}

// SeverityOf aggregates a run: ok only when every probe reached the service
// and the diagnosis is reachable.
func SeverityOf(rec domain.Recommendation, outcomes []domain.ProbeOutcome) domain.Severity {
	switch rec.Diagnosis {
	case domain.DiagnosisServiceNotRunning, domain.DiagnosisServiceUnreachable:
		return domain.SeverityUnreachable
	case domain.DiagnosisReachable:
		for _, o := range outcomes {
			if !o.Reached() {
				return domain.SeverityDegraded
			}
		}
		return domain.SeverityOK
	}
	return domain.SeverityDegraded
}

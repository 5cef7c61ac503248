package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/domain"
	"github.com/hamed0406/reachcheck/internal/firewall"
)

const (
	markOK   = "✔"
	markWarn = "⚠"
	markFail = "✖"
)

func JSON(w io.Writer, rep diagnose.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func outcomeMark(o domain.ProbeOutcome) string {
	switch {
	case o.Healthy():
		return markOK
	case o.Reached():
		return markWarn
	}
	return markFail
}

func outcomeLine(o domain.ProbeOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-25s %-40s ", outcomeMark(o), o.Mode(), o.Target.URL())
	if o.Reached() {
		fmt.Fprintf(&b, "HTTP %d", o.StatusCode)
	} else {
		b.WriteString(string(o.Result))
	}
	fmt.Fprintf(&b, " (%dms)", o.Latency.Milliseconds())
	if o.Detail != "" {
		fmt.Fprintf(&b, " %s", o.Detail)
	}
	return b.String()
}

func bindingLine(b domain.BindingState, port int) string {
	switch b.Scope {
	case domain.ScopeWildcard:
		return fmt.Sprintf("%s listening on %s port %d", markOK, b.ListenAddress, port)
	case domain.ScopeLoopbackOnly:
		return fmt.Sprintf("%s listening on %s port %d only (loopback)", markFail, b.ListenAddress, port)
	}
	return fmt.Sprintf("%s nothing listening on port %d", markFail, port)
}

func provisionLine(p *diagnose.ProvisionReport) string {
	if p.Error != "" {
		kind := "fatal"
		if p.Recoverable {
			kind = "recoverable"
		}
		return fmt.Sprintf("%s firewall: %s (%s)", markFail, p.Error, kind)
	}
	r := p.Result
	mark := markOK
	switch r.Outcome {
	case firewall.OutcomeInconclusive, firewall.OutcomeIneffective, firewall.OutcomeSkipped:
		mark = markWarn
	}
	line := fmt.Sprintf("%s firewall %s: %s", mark, r.Outcome, r.Rule)
	if r.Backend != "" {
		line += " via " + r.Backend
	}
	if r.Detail != "" {
		line += " (" + r.Detail + ")"
	}
	return line
}

// Text writes the operator-facing summary of a run.
func Text(w io.Writer, rep diagnose.Report) error {
	var b strings.Builder
	a := rep.Addresses
	fmt.Fprintf(&b, "reachcheck run %s\n", rep.RunID)
	fmt.Fprintf(&b, "  LAN IP %s (%s), bridge gateway %s (%s), internal host %s\n\n",
		a.LANIP, a.LANSource, a.BridgeGateway, a.BridgeSubnet, a.InternalHostname)

	b.WriteString(bindingLine(rep.Binding, rep.Port) + "\n")
	for _, o := range rep.Outcomes {
		b.WriteString(outcomeLine(o) + "\n")
		if o.Auth != nil {
			mark := markOK
			if !o.Auth.OK {
				mark = markWarn
			}
			fmt.Fprintf(&b, "    %s authenticated %s: HTTP %d %s\n", mark, o.Auth.Path, o.Auth.StatusCode, o.Auth.Detail)
		}
	}
	if rep.Provision != nil {
		b.WriteString(provisionLine(rep.Provision) + "\n")
	}

	rec := rep.Recommendation
	fmt.Fprintf(&b, "\ndiagnosis: %s\n", rec.Diagnosis)
	if rec.Primary != "" {
		fmt.Fprintf(&b, "use: %s", rec.Primary)
		if url := primaryURL(rep); url != "" {
			fmt.Fprintf(&b, " (%s)", url)
		}
		b.WriteString("\n")
	}
	if len(rec.Alternatives) > 0 {
		alts := make([]string, len(rec.Alternatives))
		for i, m := range rec.Alternatives {
			alts[i] = string(m)
		}
		fmt.Fprintf(&b, "alternatives: %s\n", strings.Join(alts, ", "))
	}
	if rec.Remedy != domain.RemedyNone {
		fmt.Fprintf(&b, "next step: %s\n", rec.Remedy.Describe())
	}
	fmt.Fprintf(&b, "severity: %s (exit %d)\n", rep.Severity, rep.ExitCode())

	_, err := io.WriteString(w, b.String())
	return err
}

func primaryURL(rep diagnose.Report) string {
	for _, o := range rep.Outcomes {
		if o.Mode() == rep.Recommendation.Primary {
			return o.Target.URL()
		}
	}
	return ""
}

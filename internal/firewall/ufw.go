package firewall

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// UFW manages rules through the ufw CLI. Rules are read back from
// `ufw show added`, which lists user rules whether or not ufw is enabled.
type UFW struct {
	Binary string
	run    commandRunner
}

func NewUFW() *UFW {
	return &UFW{Binary: "ufw", run: execRunner}
}

func (u *UFW) Name() string { return "ufw" }

func (u *UFW) Status(ctx context.Context) (BackendStatus, error) {
	st := BackendStatus{Name: u.Name()}
	if _, err := lookPath(u.Binary); err != nil {
		st.Detail = err.Error()
		return st, nil
	}
	st.Available = true
	out, err := u.run(ctx, u.Binary, "status")
	if err != nil {
		return st, permissionError(fmt.Errorf("ufw status: %w", err), string(out))
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Status:"); ok {
			st.Active = strings.TrimSpace(v) == "active"
			st.Detail = line
			break
		}
	}
	return st, nil
}

func (u *UFW) QueryRules(ctx context.Context) ([]domain.FirewallRule, error) {
	out, err := u.run(ctx, u.Binary, "show", "added")
	if err != nil {
		return nil, permissionError(fmt.Errorf("ufw show added: %w", err), string(out))
	}
	var rules []domain.FirewallRule
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		if r, ok := parseUFWRule(sc.Text()); ok {
			rules = append(rules, r)
		}
	}
	return rules, sc.Err()
}

func (u *UFW) AddRule(ctx context.Context, rule domain.FirewallRule) error {
	out, err := u.run(ctx, u.Binary, ufwArgs(rule)...)
	if err != nil {
		return permissionError(fmt.Errorf("ufw allow: %w, output: %s", err, strings.TrimSpace(string(out))), string(out))
	}
	return nil
}

func ufwArgs(r domain.FirewallRule) []string {
	args := []string{"allow", "from", domain.NormalizeCIDR(r.SourceCIDR), "to", "any"}
	if r.DestPort > 0 {
		args = append(args, "port", strconv.Itoa(r.DestPort), "proto", "tcp")
	}
	if r.Comment != "" {
		args = append(args, "comment", r.Comment)
	}
	return args
}

// parseUFWRule reads one `ufw show added` line, e.g.
// ufw allow from 172.17.0.0/16 to any port 8000 proto tcp comment 'x'
func parseUFWRule(line string) (domain.FirewallRule, bool) {
	fields := splitQuoted(strings.TrimSpace(line))
	if len(fields) < 3 || fields[0] != "ufw" || fields[1] != "allow" {
		return domain.FirewallRule{}, false
	}
	var r domain.FirewallRule
	proto := ""
	for i := 2; i < len(fields); i++ {
		next := ""
		if i+1 < len(fields) {
			next = fields[i+1]
		}
		switch fields[i] {
		case "out":
			return domain.FirewallRule{}, false
		case "from":
			if next != "any" {
				r.SourceCIDR = domain.NormalizeCIDR(next)
			}
			i++
		case "to":
			i++
		case "port":
			p, err := strconv.Atoi(next)
			if err != nil {
				return domain.FirewallRule{}, false
			}
			r.DestPort = p
			i++
		case "proto":
			proto = next
			i++
		case "comment":
			r.Comment = next
			i++
		}
	}
	if r.SourceCIDR == "" || (r.DestPort > 0 && proto == "udp") {
		return domain.FirewallRule{}, false
	}
	r.Present = true
	return r, true
}

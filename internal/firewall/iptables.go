package firewall

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coreos/go-iptables/iptables"

	"github.com/hamed0406/reachcheck/internal/domain"
)

const filterTable = "filter"

// iptablesClient is the part of *iptables.IPTables the backend uses.
type iptablesClient interface {
	List(table, chain string) ([]string, error)
	Insert(table, chain string, pos int, rulespec ...string) error
}

// IPTables manages ACCEPT rules at the head of a filter chain.
type IPTables struct {
	Chain string

	client    iptablesClient
	newClient func() (iptablesClient, error)
}

func NewIPTables() *IPTables {
	return &IPTables{
		Chain: "INPUT",
		newClient: func() (iptablesClient, error) {
			return iptables.New()
		},
	}
}

func (b *IPTables) Name() string { return "iptables" }

func (b *IPTables) connect() (iptablesClient, error) {
	if b.client != nil {
		return b.client, nil
	}
	c, err := b.newClient()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	b.client = c
	return c, nil
}

// Status reports iptables as active whenever its chain can be listed.
func (b *IPTables) Status(ctx context.Context) (BackendStatus, error) {
	st := BackendStatus{Name: b.Name()}
	c, err := b.connect()
	if err != nil {
		st.Detail = err.Error()
		return st, nil
	}
	st.Available = true
	if _, err := c.List(filterTable, b.Chain); err != nil {
		return st, permissionError(err, "")
	}
	st.Active = true
	return st, nil
}

func (b *IPTables) QueryRules(ctx context.Context) ([]domain.FirewallRule, error) {
	c, err := b.connect()
	if err != nil {
		return nil, err
	}
	lines, err := c.List(filterTable, b.Chain)
	if err != nil {
		return nil, permissionError(err, "")
	}
	var rules []domain.FirewallRule
	for _, line := range lines {
		if r, ok := parseIPTablesRule(line); ok {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

func (b *IPTables) AddRule(ctx context.Context, rule domain.FirewallRule) error {
	c, err := b.connect()
	if err != nil {
		return err
	}
	if err := c.Insert(filterTable, b.Chain, 1, ruleSpec(rule)...); err != nil {
		return permissionError(err, "")
	}
	return nil
}

func ruleSpec(r domain.FirewallRule) []string {
	spec := []string{"-s", domain.NormalizeCIDR(r.SourceCIDR)}
	if r.DestPort > 0 {
		spec = append(spec, "-p", "tcp", "--dport", strconv.Itoa(r.DestPort))
	}
	if r.Comment != "" {
		spec = append(spec, "-m", "comment", "--comment", r.Comment)
	}
	return append(spec, "-j", "ACCEPT")
}

// parseIPTablesRule reads one line of `iptables -S` output. Only ACCEPT
// rules with an explicit source count.
func parseIPTablesRule(line string) (domain.FirewallRule, bool) {
	fields := splitQuoted(line)
	if len(fields) < 2 || fields[0] != "-A" {
		return domain.FirewallRule{}, false
	}
	var r domain.FirewallRule
	accept, proto := false, ""
	for i := 2; i < len(fields); i++ {
		next := ""
		if i+1 < len(fields) {
			next = fields[i+1]
		}
		switch fields[i] {
		case "-s", "--source":
			r.SourceCIDR = domain.NormalizeCIDR(next)
			i++
		case "-p", "--protocol":
			proto = next
			i++
		case "--dport", "--destination-port":
			p, err := strconv.Atoi(next)
			if err != nil {
				return domain.FirewallRule{}, false
			}
			r.DestPort = p
			i++
		case "--comment":
			r.Comment = next
			i++
		case "-j", "--jump":
			accept = next == "ACCEPT"
			i++
		case "!":
			// Negated matches never describe a plain allow.
			return domain.FirewallRule{}, false
		}
	}
	if !accept || r.SourceCIDR == "" || (r.DestPort > 0 && proto != "tcp") {
		return domain.FirewallRule{}, false
	}
	r.Present = true
	return r, true
}

// splitQuoted splits on spaces, keeping single- or double-quoted runs together.
func splitQuoted(s string) []string {
	var out []string
	var cur strings.Builder
	var quote rune
	started := false
	for _, ch := range s {
		switch {
		case quote != 0 && ch == quote:
			quote = 0
		case quote == 0 && (ch == '"' || ch == '\''):
			quote = ch
			started = true
		case quote == 0 && (ch == ' ' || ch == '\t'):
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(ch)
			started = true
		}
	}
	if started {
		out = append(out, cur.String())
	}
	return out
}

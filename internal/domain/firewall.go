package domain

import (
	"fmt"
	"net"
	"strconv"
)

// FirewallRule permits SourceCIDR to reach DestPort on the host.
// DestPort 0 means any port.
type FirewallRule struct {
	SourceCIDR string `json:"source_cidr"`
	DestPort   int    `json:"dest_port"`
	Comment    string `json:"comment,omitempty"`
	Present    bool   `json:"present"`
}

// Equivalent compares source range and destination scope only; comments
// and presence do not make two rules different.
func (r FirewallRule) Equivalent(other FirewallRule) bool {
	return NormalizeCIDR(r.SourceCIDR) == NormalizeCIDR(other.SourceCIDR) &&
		r.DestPort == other.DestPort
}

func (r FirewallRule) DestScope() string {
	if r.DestPort == 0 {
		return "any"
	}
	return strconv.Itoa(r.DestPort)
}

func (r FirewallRule) String() string {
	return fmt.Sprintf("allow %s -> port %s", NormalizeCIDR(r.SourceCIDR), r.DestScope())
}

// NormalizeCIDR returns the canonical network form of a CIDR or bare IP
// ("172.17.0.1/16" becomes "172.17.0.0/16", "10.0.0.5" becomes "10.0.0.5/32").
// Unparseable input is returned unchanged.
func NormalizeCIDR(s string) string {
	if _, n, err := net.ParseCIDR(s); err == nil {
		return n.String()
	}
	if ip := net.ParseIP(s); ip != nil {
		if ip.To4() != nil {
			return ip.String() + "/32"
		}
		return ip.String() + "/128"
	}
	return s
}

package probe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNS classes reported by CheckDNS.
const (
	DNSResolves   = "RESOLVES"
	DNSNXDomain   = "NXDOMAIN"
	DNSNoARecord  = "NO_A_RECORD"
	DNSServFail   = "SERVFAIL_or_TIMEOUT"
	DNSInvalid    = "INVALID_NAME"
	DNSNoResolver = "NO_RESOLVER"
)

type DNSStatus struct {
	Domain        string
	IPs           []net.IP
	Class         string
	Server        string
	ResolverError string
}

var resolvConf = "/etc/resolv.conf"

// DNSChecker asks the configured nameservers directly so a failure can be
// told apart: a missing name, a name without addresses, or a broken resolver.
type DNSChecker struct {
	// Servers are host:port pairs; empty means read resolvConf.
	Servers []string
	Timeout time.Duration
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{Timeout: 3 * time.Second}
}

func (d *DNSChecker) servers() ([]string, error) {
	if len(d.Servers) > 0 {
		return d.Servers, nil
	}
	cfg, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, net.JoinHostPort(s, cfg.Port))
	}
	return out, nil
}

// CheckDNS classifies how name resolves. An IP literal always resolves.
func (d *DNSChecker) CheckDNS(ctx context.Context, name string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(name)}
	if ip := net.ParseIP(s.Domain); ip != nil {
		s.IPs, s.Class = []net.IP{ip}, DNSResolves
		return s
	}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalid
		return s
	}
	if _, ok := dns.IsDomainName(s.Domain); !ok {
		s.Class = DNSInvalid
		return s
	}

	servers, err := d.servers()
	if err != nil || len(servers) == 0 {
		s.Class = DNSNoResolver
		if err != nil {
			s.ResolverError = err.Error()
		}
		return s
	}

	c := &dns.Client{Timeout: d.Timeout}
	fqdn := dns.Fqdn(s.Domain)
	sawNoData := false
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(fqdn, qtype)
		m.RecursionDesired = true

		in, server, err := exchange(ctx, c, m, servers)
		s.Server = server
		if err != nil {
			s.ResolverError = err.Error()
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch in.Rcode {
		case dns.RcodeNameError:
			s.Class = DNSNXDomain
			return s
		case dns.RcodeSuccess:
			for _, rr := range in.Answer {
				switch v := rr.(type) {
				case *dns.A:
					s.IPs = append(s.IPs, v.A)
				case *dns.AAAA:
					s.IPs = append(s.IPs, v.AAAA)
				}
			}
			if len(s.IPs) > 0 {
				s.Class = DNSResolves
				return s
			}
			sawNoData = true
		default:
			s.ResolverError = dns.RcodeToString[in.Rcode]
		}
	}
	if sawNoData {
		s.Class = DNSNoARecord
	} else {
		s.Class = DNSServFail
	}
	return s
}

// exchange tries each server in turn and returns the first answer.
func exchange(ctx context.Context, c *dns.Client, m *dns.Msg, servers []string) (*dns.Msg, string, error) {
	var lastErr error
	for _, srv := range servers {
		in, _, err := c.ExchangeContext(ctx, m, srv)
		if err == nil {
			return in, srv, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", lastErr
}

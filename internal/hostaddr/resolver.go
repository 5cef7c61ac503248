// Package hostaddr works out which addresses the service can be reached on:
// the host's LAN address, the Docker bridge gateway and the internal host alias.
package hostaddr

import (
	"context"
	"errors"
	"net"

	"github.com/jackpal/gateway"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/config"
	"github.com/hamed0406/reachcheck/internal/domain"
)

// Fallbacks used when the host cannot tell us better.
const (
	FallbackLAN           = "localhost"
	FallbackBridgeGateway = "172.17.0.1"
	FallbackBridgeSubnet  = "172.17.0.0/16"
	LoopbackHost          = "127.0.0.1"
)

// outboundProbeAddr is only used to select a route; no packet is sent.
const outboundProbeAddr = "8.8.8.8:80"

var (
	discoverInterface = gateway.DiscoverInterface
	interfaceAddrs    = func(name string) ([]net.Addr, error) {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, err
		}
		return iface.Addrs()
	}
	outboundIP = func(ctx context.Context) (net.IP, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "udp", outboundProbeAddr)
		if err != nil {
			return nil, err
		}
		defer func() { _ = conn.Close() }()
		addr, ok := conn.LocalAddr().(*net.UDPAddr)
		if !ok {
			return nil, errors.New("unexpected local address type")
		}
		return addr.IP, nil
	}
)

type Addresses struct {
	LANIP            string `json:"lan_ip"`
	LANSource        string `json:"lan_source"` // default-route | outbound-udp | fallback
	BridgeGateway    string `json:"bridge_gateway"`
	BridgeSubnet     string `json:"bridge_subnet"`
	InternalHostname string `json:"internal_hostname"`
}

type Resolver struct {
	Logger           *zap.Logger
	BridgeInterface  string
	InternalHostname string
}

func NewResolver(logger *zap.Logger, cfg config.Config) *Resolver {
	return &Resolver{
		Logger:           logger,
		BridgeInterface:  cfg.BridgeInterface,
		InternalHostname: cfg.InternalHostname,
	}
}

// Resolve never fails; anything it cannot determine falls back to a
// documented literal.
func (r *Resolver) Resolve(ctx context.Context) Addresses {
	a := Addresses{InternalHostname: r.InternalHostname}
	a.LANIP, a.LANSource = r.lanIP(ctx)
	a.BridgeGateway, a.BridgeSubnet = r.bridge()

	r.Logger.Debug("addresses_resolved",
		zap.String("lan_ip", a.LANIP),
		zap.String("lan_source", a.LANSource),
		zap.String("bridge_gateway", a.BridgeGateway),
		zap.String("bridge_subnet", a.BridgeSubnet),
	)
	return a
}

// lanIP prefers the address of the default-route interface so multi-homed
// hosts report the interface peers actually reach.
func (r *Resolver) lanIP(ctx context.Context) (string, string) {
	if ip, err := discoverInterface(); err == nil && usable(ip) {
		return ip.String(), "default-route"
	} else if err != nil {
		r.Logger.Debug("default_route_lookup_failed", zap.Error(err))
	}
	if ip, err := outboundIP(ctx); err == nil && usable(ip) {
		return ip.String(), "outbound-udp"
	} else if err != nil {
		r.Logger.Debug("outbound_ip_lookup_failed", zap.Error(err))
	}
	r.Logger.Warn("lan_ip_fallback", zap.String("host", FallbackLAN))
	return FallbackLAN, "fallback"
}

func (r *Resolver) bridge() (string, string) {
	addrs, err := interfaceAddrs(r.BridgeInterface)
	if err != nil {
		r.Logger.Debug("bridge_interface_missing",
			zap.String("interface", r.BridgeInterface), zap.Error(err))
		return FallbackBridgeGateway, FallbackBridgeSubnet
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil {
			continue
		}
		subnet := &net.IPNet{IP: ipnet.IP.Mask(ipnet.Mask), Mask: ipnet.Mask}
		return ipnet.IP.String(), subnet.String()
	}
	return FallbackBridgeGateway, FallbackBridgeSubnet
}

func usable(ip net.IP) bool {
	return ip != nil && !ip.IsUnspecified() && !ip.IsLoopback()
}

// Targets builds exactly one probe target per addressing mode, in
// domain.AllModes order.
func Targets(a Addresses, cfg config.Config) []domain.ProbeTarget {
	hosts := map[domain.AddressingMode]string{
		domain.ModeLoopback:               LoopbackHost,
		domain.ModeLANIP:                  a.LANIP,
		domain.ModeDockerBridgeGateway:    a.BridgeGateway,
		domain.ModeDockerInternalHostname: a.InternalHostname,
	}
	out := make([]domain.ProbeTarget, 0, len(hosts))
	for _, m := range domain.AllModes() {
		out = append(out, domain.ProbeTarget{
			Mode:    m,
			Host:    hosts[m],
			Port:    cfg.Port,
			Path:    cfg.LivenessPath,
			Timeout: cfg.Timeouts.For(m),
		})
	}
	return out
}

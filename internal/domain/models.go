package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// AddressingMode names one way of reaching the service from a calling context.
type AddressingMode string

const (
	ModeLoopback               AddressingMode = "loopback"
	ModeLANIP                  AddressingMode = "lan-ip"
	ModeDockerBridgeGateway    AddressingMode = "docker-bridge-gateway"
	ModeDockerInternalHostname AddressingMode = "docker-internal-hostname"
)

// AllModes returns every supported addressing mode in a fixed order.
func AllModes() []AddressingMode {
	return []AddressingMode{
		ModeLoopback,
		ModeLANIP,
		ModeDockerBridgeGateway,
		ModeDockerInternalHostname,
	}
}

func (m AddressingMode) Valid() bool {
	switch m {
	case ModeLoopback, ModeLANIP, ModeDockerBridgeGateway, ModeDockerInternalHostname:
		return true
	}
	return false
}

// ContainerOriginated reports whether the probe for this mode runs from
// inside a container rather than from the host itself.
func (m AddressingMode) ContainerOriginated() bool {
	return m == ModeDockerBridgeGateway || m == ModeDockerInternalHostname
}

type ProbeTarget struct {
	Mode    AddressingMode `json:"mode"`
	Host    string         `json:"host"`
	Port    int            `json:"port"`
	Path    string         `json:"path"`
	Timeout time.Duration  `json:"timeout"`
}

// Addr returns host:port suitable for dialing.
func (t ProbeTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// URL returns the liveness URL for the target.
func (t ProbeTarget) URL() string {
	return t.URLFor(t.Path)
}

func (t ProbeTarget) URLFor(path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return fmt.Sprintf("http://%s%s", t.Addr(), path)
}

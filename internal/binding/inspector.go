// Package binding classifies the scope of the service's listening socket
// from the host's socket tables, independent of any probing. A loopback-only
// bind still answers a loopback probe, so only this check can see it.
package binding

import (
	"errors"
	"net"
	"os"

	"github.com/prometheus/procfs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// tcpListen is the kernel's TCP_LISTEN state as printed in /proc/net/tcp.
const tcpListen = 0x0A

type Listener struct {
	Addr net.IP
	Port int
}

// ListenerSource returns every listening TCP socket on the host.
type ListenerSource func() ([]Listener, error)

type Inspector struct {
	Logger    *zap.Logger
	Listeners ListenerSource
}

func NewInspector(logger *zap.Logger) *Inspector {
	return &Inspector{Logger: logger, Listeners: ProcListeners(procfs.DefaultMountPoint)}
}

// Inspect never fails. If the socket table cannot be read the service is
// reported unbound and the read error is logged.
func (i *Inspector) Inspect(port int) domain.BindingState {
	ls, err := i.Listeners()
	if err != nil && len(ls) == 0 {
		i.Logger.Warn("binding_inspect_failed", zap.Int("port", port), zap.Error(err))
		return domain.BindingState{Scope: domain.ScopeUnbound}
	}
	if err != nil {
		i.Logger.Debug("binding_inspect_partial", zap.Int("port", port), zap.Error(err))
	}
	st := Classify(ls, port)
	i.Logger.Debug("binding_inspected",
		zap.Int("port", port),
		zap.String("scope", string(st.Scope)),
		zap.String("listen_address", st.ListenAddress),
	)
	return st
}

// Classify maps the listeners on port to exactly one scope. A wildcard
// listener wins over everything else. A listener on a specific non-loopback
// address is reported as wildcard with that address; the probes show which
// modes it actually serves.
func Classify(listeners []Listener, port int) domain.BindingState {
	var loopback, specific net.IP
	for _, l := range listeners {
		if l.Port != port || l.Addr == nil {
			continue
		}
		switch {
		case l.Addr.IsUnspecified():
			return domain.BindingState{ListenAddress: l.Addr.String(), Scope: domain.ScopeWildcard}
		case l.Addr.IsLoopback():
			if loopback == nil {
				loopback = l.Addr
			}
		default:
			if specific == nil {
				specific = l.Addr
			}
		}
	}
	switch {
	case specific != nil:
		return domain.BindingState{ListenAddress: specific.String(), Scope: domain.ScopeWildcard}
	case loopback != nil:
		return domain.BindingState{ListenAddress: loopback.String(), Scope: domain.ScopeLoopbackOnly}
	}
	return domain.BindingState{Scope: domain.ScopeUnbound}
}

// ProcListeners reads IPv4 and IPv6 listening sockets from procfs. A missing
// tcp6 table (IPv6 disabled) is not an error.
func ProcListeners(mountPoint string) ListenerSource {
	return func() ([]Listener, error) {
		fs, err := procfs.NewFS(mountPoint)
		if err != nil {
			return nil, err
		}
		var out []Listener
		var errs error

		v4, err := fs.NetTCP()
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		for _, line := range v4 {
			if line.St == tcpListen {
				out = append(out, Listener{Addr: line.LocalAddr, Port: int(line.LocalPort)})
			}
		}

		v6, err := fs.NetTCP6()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
		for _, line := range v6 {
			if line.St == tcpListen {
				out = append(out, Listener{Addr: line.LocalAddr, Port: int(line.LocalPort)})
			}
		}
		return out, errs
	}
}

package firewall

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// BackendStatus describes whether a packet filter can be managed. An
// unavailable or inactive filter restricts nothing.
type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Active    bool   `json:"active"`
	Detail    string `json:"detail,omitempty"`
}

// Backend is a host packet filter with query and insert semantics.
type Backend interface {
	Name() string
	Status(ctx context.Context) (BackendStatus, error)
	QueryRules(ctx context.Context) ([]domain.FirewallRule, error)
	AddRule(ctx context.Context, rule domain.FirewallRule) error
}

// commandRunner runs a CLI and returns combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var lookPath = exec.LookPath

// Detect picks a backend by name. "auto" prefers an active ufw, then
// iptables; "none" and an auto search that finds nothing return nil.
func Detect(ctx context.Context, name string, logger *zap.Logger) (Backend, error) {
	switch name {
	case "none":
		return nil, nil
	case "iptables":
		return NewIPTables(), nil
	case "ufw":
		return NewUFW(), nil
	case "", "auto":
	default:
		return nil, fmt.Errorf("unknown firewall backend %q", name)
	}

	ufw := NewUFW()
	if st, err := ufw.Status(ctx); err == nil && st.Available && st.Active {
		logger.Debug("firewall_backend_selected", zap.String("backend", ufw.Name()))
		return ufw, nil
	}
	ipt := NewIPTables()
	if st, err := ipt.Status(ctx); err == nil && st.Available {
		logger.Debug("firewall_backend_selected", zap.String("backend", ipt.Name()))
		return ipt, nil
	} else if err != nil {
		// Permission problems still need a backend so EnsureAllow can report them.
		logger.Debug("firewall_backend_selected", zap.String("backend", ipt.Name()), zap.Error(err))
		return ipt, nil
	}
	logger.Info("firewall_backend_absent")
	return nil, nil
}

package firewall

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermission         = errors.New("insufficient privilege to change packet filter")
	ErrBackendUnavailable = errors.New("packet filter backend unavailable")
	ErrNotVerified        = errors.New("rule not present after add")
	ErrInvalidRule        = errors.New("invalid rule")
	// ErrStillBlocked means the rule is in place but a container client
	// still cannot reach the service.
	ErrStillBlocked = errors.New("service still unreachable from container")
)

// ProvisionError is returned by EnsureAllow. Fatal errors will not go away
// by retrying the same call.
type ProvisionError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("firewall %s: %v", e.Op, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func (e *ProvisionError) Recoverable() bool { return !e.Fatal }

// permissionError maps the messages iptables and ufw print for non-root
// callers onto ErrPermission.
func permissionError(err error, output string) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(output + " " + err.Error())
	for _, marker := range []string{"permission denied", "you must be root", "need to be root", "operation not permitted"} {
		if strings.Contains(text, marker) {
			return fmt.Errorf("%w: %s", ErrPermission, strings.TrimSpace(output))
		}
	}
	return err
}

package domain

type BindingScope string

const (
	ScopeWildcard     BindingScope = "wildcard"
	ScopeLoopbackOnly BindingScope = "loopback_only"
	ScopeUnbound      BindingScope = "unbound"
)

// BindingState describes where the service's listening socket is bound.
// ListenAddress is empty when Scope is ScopeUnbound.
type BindingState struct {
	ListenAddress string       `json:"listen_address,omitempty"`
	Scope         BindingScope `json:"scope"`
}

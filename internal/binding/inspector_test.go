package binding

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/domain"
)

func l(addr string, port int) Listener {
	return Listener{Addr: net.ParseIP(addr), Port: port}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		listeners []Listener
		scope     domain.BindingScope
		addr      string
	}{
		{"no listeners", nil, domain.ScopeUnbound, ""},
		{"other port only", []Listener{l("0.0.0.0", 22)}, domain.ScopeUnbound, ""},
		{"ipv4 wildcard", []Listener{l("0.0.0.0", 8000)}, domain.ScopeWildcard, "0.0.0.0"},
		{"ipv6 wildcard", []Listener{l("::", 8000)}, domain.ScopeWildcard, "::"},
		{"loopback only", []Listener{l("127.0.0.1", 8000)}, domain.ScopeLoopbackOnly, "127.0.0.1"},
		{"loopback both stacks", []Listener{l("127.0.0.1", 8000), l("::1", 8000)}, domain.ScopeLoopbackOnly, "127.0.0.1"},
		{"wildcard beats loopback", []Listener{l("127.0.0.1", 8000), l("0.0.0.0", 8000)}, domain.ScopeWildcard, "0.0.0.0"},
		{"specific lan address", []Listener{l("127.0.0.1", 8000), l("192.168.1.20", 8000)}, domain.ScopeWildcard, "192.168.1.20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Classify(tt.listeners, 8000)
			assert.Equal(t, tt.scope, st.Scope)
			assert.Equal(t, tt.addr, st.ListenAddress)
		})
	}
}

func TestInspect_ReadErrorIsUnbound(t *testing.T) {
	i := &Inspector{
		Logger:    zap.NewNop(),
		Listeners: func() ([]Listener, error) { return nil, errors.New("permission denied") },
	}
	assert.Equal(t, domain.ScopeUnbound, i.Inspect(8000).Scope)
}

func TestInspect_PartialReadStillClassifies(t *testing.T) {
	i := &Inspector{
		Logger: zap.NewNop(),
		Listeners: func() ([]Listener, error) {
			return []Listener{l("127.0.0.1", 8000)}, errors.New("tcp6 unreadable")
		},
	}
	assert.Equal(t, domain.ScopeLoopbackOnly, i.Inspect(8000).Scope)
}

// Lines follow the /proc/net/tcp format. 1F40 is port 8000, 0A is LISTEN,
// 01 is ESTABLISHED.
const procTCP = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F40 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 1001 1 0000000000000000 100 0 0 10 0
   1: 00000000:0016 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 1002 1 0000000000000000 100 0 0 10 0
   2: 0100007F:1F40 0100007F:D2F0 01 00000000:00000000 00:00000000 00000000     0        0 1003 1 0000000000000000 20 4 30 10 -1
`

func TestProcListeners_ReadsListenSockets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "net"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "net", "tcp"), []byte(procTCP), 0o644))

	ls, err := ProcListeners(root)()
	require.NoError(t, err)
	require.Len(t, ls, 2)

	st := Classify(ls, 8000)
	assert.Equal(t, domain.ScopeLoopbackOnly, st.Scope)
	assert.Equal(t, "127.0.0.1", st.ListenAddress)
}

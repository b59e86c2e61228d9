package port

import "context"

// TunnelSpec describes one SSH tunnel to open. RemoteAddr is the database
// address as seen from the SSH host. HostKey is the pinned public key of
// the SSH host in authorized_keys format; opening fails without it.
type TunnelSpec struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	HostKey    string
	RemoteAddr string
}

// TunnelHandle is one live tunnel. LocalAddr is the loopback endpoint that
// relays to the remote address the tunnel was opened for. Close is idempotent
// and also tears down connections currently proxied through the tunnel.
type TunnelHandle interface {
	LocalAddr() string
	Close() error
}

// TunnelDialer opens tunnels. Implementations own local port allocation
// and reclaim the port when the handle closes.
type TunnelDialer interface {
	Open(ctx context.Context, spec TunnelSpec) (TunnelHandle, error)
}

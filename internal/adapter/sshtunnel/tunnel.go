package sshtunnel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ColdranAI/sqlbase/internal/core/port"
)

const (
	dialTimeout       = 10 * time.Second
	keepaliveInterval = 30 * time.Second
)

// Dialer opens SSH tunnels that forward a local loopback port to a
// database reachable from the SSH host. It implements port.TunnelDialer.
type Dialer struct {
	ports  *PortAllocator
	logger *slog.Logger
}

// NewDialer creates a Dialer that allocates local ports from ports.
func NewDialer(ports *PortAllocator, logger *slog.Logger) *Dialer {
	return &Dialer{ports: ports, logger: logger}
}

// Open establishes the SSH connection, binds a local loopback listener and
// starts forwarding. A pinned host key is required; without one the dial is
// refused rather than falling back to accept-any.
func (d *Dialer) Open(ctx context.Context, spec port.TunnelSpec) (port.TunnelHandle, error) {
	keyBytes, err := os.ReadFile(spec.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh key: %w", err)
	}

	hostKeyCallback, err := pinnedHostKey(spec.HostKey)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            spec.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	sshAddr := net.JoinHostPort(spec.Host, fmt.Sprintf("%d", spec.Port))
	netDialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := netDialer.DialContext(ctx, "tcp", sshAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing ssh host %s: %w", sshAddr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, sshAddr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", sshAddr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	localPort, err := d.ports.Acquire()
	if err != nil {
		client.Close()
		return nil, err
	}

	localAddr := net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", localPort))
	listener, err := net.Listen("tcp", localAddr)
	if err != nil {
		d.ports.Release(localPort)
		client.Close()
		return nil, fmt.Errorf("binding local port %d: %w", localPort, err)
	}

	t := &Tunnel{
		client:     client,
		listener:   listener,
		localAddr:  localAddr,
		remoteAddr: spec.RemoteAddr,
		localPort:  localPort,
		ports:      d.ports,
		logger:     d.logger,
		conns:      make(map[net.Conn]struct{}),
		done:       make(chan struct{}),
	}
	go t.acceptLoop()
	go t.keepaliveLoop()

	d.logger.Info("ssh tunnel opened",
		slog.String("ssh_host", sshAddr),
		slog.String("local_addr", localAddr),
		slog.String("remote_addr", spec.RemoteAddr),
	)
	return t, nil
}

// pinnedHostKey builds a host key callback that accepts exactly the pinned
// key. An empty pin is an error: the tunnel never falls back to trusting
// whatever key the host presents.
func pinnedHostKey(pin string) (ssh.HostKeyCallback, error) {
	if pin == "" {
		return nil, fmt.Errorf("ssh host key pin required")
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pin))
	if err != nil {
		return nil, fmt.Errorf("parsing pinned host key: %w", err)
	}
	return ssh.FixedHostKey(key), nil
}

// Tunnel is one live SSH local forward. It implements port.TunnelHandle.
type Tunnel struct {
	client     *ssh.Client
	listener   net.Listener
	localAddr  string
	remoteAddr string
	localPort  int
	ports      *PortAllocator
	logger     *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// LocalAddr returns the loopback endpoint the tunnel listens on.
func (t *Tunnel) LocalAddr() string {
	return t.localAddr
}

func (t *Tunnel) acceptLoop() {
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.logger.Warn("tunnel accept failed",
				slog.String("local_addr", t.localAddr),
				slog.String("error", err.Error()),
			)
			return
		}
		go t.forward(local)
	}
}

// forward proxies one local connection to the remote database through the
// SSH channel.
func (t *Tunnel) forward(local net.Conn) {
	remote, err := t.client.Dial("tcp", t.remoteAddr)
	if err != nil {
		t.logger.Warn("tunnel remote dial failed",
			slog.String("remote_addr", t.remoteAddr),
			slog.String("error", err.Error()),
		)
		local.Close()
		return
	}

	t.track(local)
	t.track(remote)
	defer t.untrack(local)
	defer t.untrack(remote)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(remote, local) //nolint:errcheck
		remote.Close()
	}()
	go func() {
		defer wg.Done()
		io.Copy(local, remote) //nolint:errcheck
		local.Close()
	}()
	wg.Wait()
}

func (t *Tunnel) track(c net.Conn) {
	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()
}

func (t *Tunnel) untrack(c net.Conn) {
	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
	c.Close()
}

// keepaliveLoop sends an OpenSSH keepalive every 30s. A failed keepalive is
// logged and nothing else: the tunnel stays up until the next use fails or
// the owner closes it.
func (t *Tunnel) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if _, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("ssh keepalive failed",
					slog.String("local_addr", t.localAddr),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close tears the tunnel down: the listener, every proxied connection, the
// SSH client, and the local port reservation. Safe to call more than once.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.listener.Close() //nolint:errcheck

		t.mu.Lock()
		for c := range t.conns {
			c.Close() //nolint:errcheck
		}
		t.conns = make(map[net.Conn]struct{})
		t.mu.Unlock()

		t.client.Close() //nolint:errcheck
		t.ports.Release(t.localPort)

		t.logger.Info("ssh tunnel closed",
			slog.String("local_addr", t.localAddr),
		)
	})
	return nil
}

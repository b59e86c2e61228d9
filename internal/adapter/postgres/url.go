package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultRemoteAddr = "localhost:5432"

// RemoteAddr extracts the host:port a connection string points at, as seen
// from wherever the dial happens. Unix-socket and host-less strings fall
// back to localhost:5432, the address a database typically listens on from
// the SSH host's point of view.
func RemoteAddr(connString string) (string, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return "", fmt.Errorf("parsing connection string: %w", err)
	}
	host := cfg.ConnConfig.Host
	if host == "" || host[0] == '/' {
		return defaultRemoteAddr, nil
	}
	return net.JoinHostPort(host, strconv.Itoa(int(cfg.ConnConfig.Port))), nil
}

// RewriteLocalURL rebuilds a connection string so it dials localAddr while
// keeping the original credentials, database name and runtime parameters.
// Used to send a user's pool through an SSH tunnel's loopback endpoint.
func RewriteLocalURL(connString, localAddr string) (string, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return "", fmt.Errorf("parsing connection string: %w", err)
	}
	cc := cfg.ConnConfig

	u := url.URL{
		Scheme: "postgresql",
		Host:   localAddr,
		Path:   "/" + cc.Database,
	}
	if cc.User != "" {
		if cc.Password != "" {
			u.User = url.UserPassword(cc.User, cc.Password)
		} else {
			u.User = url.User(cc.User)
		}
	}

	q := u.Query()
	for k, v := range cc.RuntimeParams {
		q.Set(k, v)
	}
	// The rewritten URL dials loopback; the SSH channel carries the traffic.
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

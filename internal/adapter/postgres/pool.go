package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Per-user pool bounds. Kept small: one broker process serves many users
// and each cached pool holds real sockets against someone's database.
const (
	userPoolMaxConns        = 10
	userPoolMinConns        = 2
	userPoolMaxConnLifetime = time.Hour
	userPoolMaxConnIdleTime = 15 * time.Minute
)

// NewUserPool connects a bounded pool to a user's database and verifies it
// with a ping. On ping failure the pool is closed before returning, so a
// failed connect never leaks sockets.
func NewUserPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = userPoolMaxConns
	cfg.MinConns = userPoolMinConns
	cfg.MaxConnLifetime = userPoolMaxConnLifetime
	cfg.MaxConnIdleTime = userPoolMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

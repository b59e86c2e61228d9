package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ColdranAI/sqlbase/internal/adapter/store/migrations"
)

// Control-plane pool bounds. This pool backs config and usage storage for
// every request, so it is sized above the per-user pools.
const (
	controlMaxConns        = 30
	controlMinConns        = 5
	controlMaxConnLifetime = time.Hour
	controlMaxConnIdleTime = 30 * time.Minute

	healthInterval    = 30 * time.Second
	healthPingTimeout = 5 * time.Second
)

// DB owns the broker's own Postgres pool, the one holding configs and
// usage logs, as opposed to the per-user pools being brokered.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
	stop   context.CancelFunc
}

// Open connects the control-plane pool, verifies it with a ping and starts
// a background health probe. The pool replaces broken connections on its
// own; the probe only surfaces outages in the logs.
func Open(ctx context.Context, dbURL string, logger *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.MaxConns = controlMaxConns
	cfg.MinConns = controlMinConns
	cfg.MaxConnLifetime = controlMaxConnLifetime
	cfg.MaxConnIdleTime = controlMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	db := &DB{Pool: pool, logger: logger, stop: cancel}
	go db.healthLoop(loopCtx)
	return db, nil
}

func (d *DB) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
			if err := d.Pool.Ping(pingCtx); err != nil {
				d.logger.Warn("control-plane database ping failed",
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}

// Close stops the health probe and closes the pool.
func (d *DB) Close() {
	d.stop()
	d.Pool.Close()
}

// RunMigrations applies goose migrations from the embedded migration files.
func RunMigrations(dbURL string) error {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("opening db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}

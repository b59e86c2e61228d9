package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/ColdranAI/sqlbase/internal/adapter/postgres"
	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
)

// connectTimeout bounds one full connection build: tunnel open, pool
// creation and the verification ping together.
const connectTimeout = 30 * time.Second

// PoolFactory builds and verifies a pool for a connection string.
// Injected so tests can substitute pools that never dial.
type PoolFactory func(ctx context.Context, connString string) (*pgxpool.Pool, error)

// brokerEntry is one user's live connection: the pool and, for SSH
// configs, the tunnel it rides on.
type brokerEntry struct {
	pool   *pgxpool.Pool
	tunnel port.TunnelHandle // nil unless the config is SSH
}

func (e *brokerEntry) close() {
	e.pool.Close()
	if e.tunnel != nil {
		_ = e.tunnel.Close()
	}
}

// Broker hands out ready-to-use database pools keyed by user. On the
// first request for a user it loads the stored config, decrypts it,
// builds whatever transport the config calls for, connects and caches the
// result. Concurrent requests for the same cold user are deduplicated via
// singleflight — the lock is never held during network I/O.
//
// The cache is a bounded LRU: admitting user N+1 past capacity closes the
// least recently used connection.
type Broker struct {
	repo    port.ConfigRepository
	cipher  port.Encryptor
	dialer  port.TunnelDialer
	newPool PoolFactory
	logger  *slog.Logger

	mu       sync.RWMutex
	cache    *lru.Cache[string, *brokerEntry]
	inflight singleflight.Group
}

// NewBroker creates a Broker holding at most capacity live connections.
func NewBroker(
	repo port.ConfigRepository,
	cipher port.Encryptor,
	dialer port.TunnelDialer,
	newPool PoolFactory,
	capacity int,
	logger *slog.Logger,
) (*Broker, error) {
	b := &Broker{
		repo:    repo,
		cipher:  cipher,
		dialer:  dialer,
		newPool: newPool,
		logger:  logger,
	}
	cache, err := lru.NewWithEvict[string, *brokerEntry](capacity, b.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating connection cache: %w", err)
	}
	b.cache = cache
	return b, nil
}

// onEvict closes the evicted entry in the background: pool.Close blocks
// until in-flight queries return, so statements already running on the
// old connection finish before its sockets die.
func (b *Broker) onEvict(userID string, entry *brokerEntry) {
	go func() {
		entry.close()
		b.logger.Info("user connection closed",
			slog.String("user_id", userID),
		)
	}()
}

// GetConnection returns the user's pool, building it on first use.
func (b *Broker) GetConnection(ctx context.Context, userID string) (*pgxpool.Pool, error) {
	// Fast path: check cache under read lock.
	b.mu.RLock()
	if entry, ok := b.cache.Get(userID); ok {
		b.mu.RUnlock()
		return entry.pool, nil
	}
	b.mu.RUnlock()

	// Slow path: singleflight deduplicates concurrent connection attempts
	// for the same user. Runs WITHOUT holding the lock — other users stay
	// unblocked.
	result, err, _ := b.inflight.Do(userID, func() (any, error) {
		// Double-check cache (another goroutine may have completed while we waited).
		b.mu.RLock()
		if entry, ok := b.cache.Get(userID); ok {
			b.mu.RUnlock()
			return entry.pool, nil
		}
		b.mu.RUnlock()

		entry, err := b.connect(ctx, userID)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache.Add(userID, entry)
		b.mu.Unlock()
		return entry.pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*pgxpool.Pool), nil
}

// connect loads and decrypts the active config and builds the transport
// plus pool it describes. Called within singleflight — never under lock.
func (b *Broker) connect(ctx context.Context, userID string) (*brokerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	rec, err := b.repo.ActiveConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg, err := decryptConfig(b.cipher, rec)
	if err != nil {
		return nil, err
	}

	return b.build(ctx, userID, cfg)
}

func (b *Broker) build(ctx context.Context, userID string, cfg *domain.ConnectionConfig) (*brokerEntry, error) {
	switch cfg.Type {
	case domain.ConnectionDirect:
		return b.buildDirect(ctx, userID, cfg.Direct.DatabaseURL, "direct")
	case domain.ConnectionWireguard:
		// The VPN interface is host-managed; the database URL inside it is
		// dialed like any other.
		return b.buildDirect(ctx, userID, cfg.Wireguard.InternalDatabaseURL, "wireguard")
	case domain.ConnectionSSH:
		return b.buildSSH(ctx, userID, cfg.SSH)
	default:
		return nil, domain.Kind(domain.ErrValidation, fmt.Errorf("unsupported connection type %q", cfg.Type))
	}
}

func (b *Broker) buildDirect(ctx context.Context, userID, url, transport string) (*brokerEntry, error) {
	pool, err := b.newPool(ctx, url)
	if err != nil {
		return nil, domain.Kind(domain.ErrConnection, err)
	}

	b.logger.Info("user connection established",
		slog.String("user_id", userID),
		slog.String("transport", transport),
	)
	return &brokerEntry{pool: pool}, nil
}

func (b *Broker) buildSSH(ctx context.Context, userID string, cfg *domain.SSHConfig) (*brokerEntry, error) {
	remoteAddr, err := postgres.RemoteAddr(cfg.DatabaseURL)
	if err != nil {
		return nil, domain.Kind(domain.ErrValidation, err)
	}

	tunnel, err := b.dialer.Open(ctx, port.TunnelSpec{
		Host:       cfg.Host,
		Port:       cfg.Port,
		User:       cfg.User,
		KeyPath:    cfg.KeyPath,
		HostKey:    cfg.HostKey,
		RemoteAddr: remoteAddr,
	})
	if err != nil {
		return nil, domain.Kind(domain.ErrConnection, err)
	}

	localURL, err := postgres.RewriteLocalURL(cfg.DatabaseURL, tunnel.LocalAddr())
	if err != nil {
		_ = tunnel.Close()
		return nil, domain.Kind(domain.ErrValidation, err)
	}

	pool, err := b.newPool(ctx, localURL)
	if err != nil {
		_ = tunnel.Close()
		return nil, domain.Kind(domain.ErrConnection, err)
	}

	b.logger.Info("user connection established",
		slog.String("user_id", userID),
		slog.String("transport", "ssh"),
		slog.String("local_addr", tunnel.LocalAddr()),
	)
	return &brokerEntry{pool: pool, tunnel: tunnel}, nil
}

// TestConnection builds a throwaway connection from the user's saved
// config, verifies it and tears it down. Nothing is cached.
func (b *Broker) TestConnection(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	rec, err := b.repo.ActiveConfig(ctx, userID)
	if err != nil {
		return err
	}
	cfg, err := decryptConfig(b.cipher, rec)
	if err != nil {
		return err
	}

	entry, err := b.build(ctx, userID, cfg)
	if err != nil {
		return err
	}
	entry.close()
	return nil
}

// TestDraft verifies a configuration that has not been saved, so users
// can probe credentials before anything is persisted.
func (b *Broker) TestDraft(ctx context.Context, userID string, cfg *domain.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return domain.Kind(domain.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	entry, err := b.build(ctx, userID, cfg)
	if err != nil {
		return err
	}
	entry.close()
	return nil
}

// Invalidate drops the user's cached connection, if any. The eviction
// callback closes it in the background.
func (b *Broker) Invalidate(userID string) {
	b.mu.Lock()
	b.cache.Remove(userID)
	b.mu.Unlock()
}

// Close drops every cached connection.
func (b *Broker) Close() {
	b.mu.Lock()
	b.cache.Purge()
	b.mu.Unlock()
}

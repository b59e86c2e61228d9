package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newLazyPool builds a pool that never dials; MinConns = 0 keeps it idle.
func newLazyPool(ctx context.Context) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig("host=localhost dbname=broker_dummy_never_connect")
	if err != nil {
		return nil, err
	}
	config.MinConns = 0
	return pgxpool.NewWithConfig(ctx, config)
}

// --- mock ConfigRepository ---

type stubRepo struct {
	saveFn   func(ctx context.Context, rec *port.ConfigRecord) error
	activeFn func(ctx context.Context, userID string) (*port.ConfigRecord, error)
	deleteFn func(ctx context.Context, userID string) error
}

func (s *stubRepo) SaveConfig(ctx context.Context, rec *port.ConfigRecord) error {
	if s.saveFn != nil {
		return s.saveFn(ctx, rec)
	}
	return nil
}

func (s *stubRepo) ActiveConfig(ctx context.Context, userID string) (*port.ConfigRecord, error) {
	if s.activeFn != nil {
		return s.activeFn(ctx, userID)
	}
	return nil, domain.ErrConfigNotFound
}

func (s *stubRepo) DeleteConfig(ctx context.Context, userID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID)
	}
	return nil
}

// --- fake Encryptor ---

// fakeCipher marks ciphertext with a prefix so records can be built by
// hand and decryption failures can be provoked with unmarked bytes.
type fakeCipher struct{}

func (fakeCipher) Encrypt(_ string, _ domain.ConnectionType, plaintext []byte) ([]byte, error) {
	return append([]byte("enc:"), plaintext...), nil
}

func (fakeCipher) Decrypt(_ string, _ domain.ConnectionType, ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, []byte("enc:")) {
		return nil, fmt.Errorf("ciphertext does not authenticate")
	}
	return bytes.Clone(ciphertext[len("enc:"):]), nil
}

// --- fake tunnel ---

type fakeTunnel struct {
	addr string

	mu     sync.Mutex
	closed int
}

func (f *fakeTunnel) LocalAddr() string { return f.addr }

func (f *fakeTunnel) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeTunnel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type stubDialer struct {
	openFn func(ctx context.Context, spec port.TunnelSpec) (port.TunnelHandle, error)
}

func (s *stubDialer) Open(ctx context.Context, spec port.TunnelSpec) (port.TunnelHandle, error) {
	if s.openFn != nil {
		return s.openFn(ctx, spec)
	}
	return nil, fmt.Errorf("no tunnel in this test")
}

// --- record helpers ---

func directRecord(userID, databaseURL string) *port.ConfigRecord {
	return &port.ConfigRecord{
		UserID:    userID,
		Type:      domain.ConnectionDirect,
		Direct:    &port.DirectRecord{DatabaseURL: []byte("enc:" + databaseURL)},
		UpdatedAt: time.Now(),
	}
}

func sshRecord(userID string) *port.ConfigRecord {
	return &port.ConfigRecord{
		UserID: userID,
		Type:   domain.ConnectionSSH,
		SSH: &port.SSHRecord{
			Host:        []byte("enc:bastion.example.com"),
			Port:        22,
			Username:    []byte("enc:deploy"),
			KeyPath:     []byte("enc:/keys/user1/id_ed25519"),
			HostKey:     []byte("enc:ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIDEx bastion"),
			DatabaseURL: []byte("enc:postgres://app:pw@10.0.0.5:5433/appdb"),
		},
		UpdatedAt: time.Now(),
	}
}

func newTestBroker(t *testing.T, repo port.ConfigRepository, dialer port.TunnelDialer, newPool PoolFactory, capacity int) *Broker {
	t.Helper()
	b, err := NewBroker(repo, fakeCipher{}, dialer, newPool, capacity, testLogger())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

// --- tests ---

func TestBroker_GetConnection_CachesPool(t *testing.T) {
	repo := &stubRepo{}
	var activeCalls, poolCalls atomic.Int32
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		activeCalls.Add(1)
		return directRecord(userID, "postgres://app:pw@db.internal:5432/app"), nil
	}
	newPool := func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		poolCalls.Add(1)
		return newLazyPool(ctx)
	}
	b := newTestBroker(t, repo, &stubDialer{}, newPool, 8)

	first, err := b.GetConnection(context.Background(), "user1")
	require.NoError(t, err)
	second, err := b.GetConnection(context.Background(), "user1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), activeCalls.Load())
	assert.Equal(t, int32(1), poolCalls.Load())
}

func TestBroker_GetConnection_ConcurrentSingleBuild(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return directRecord(userID, "postgres://app:pw@db.internal:5432/app"), nil
	}
	var poolCalls atomic.Int32
	newPool := func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		poolCalls.Add(1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		return newLazyPool(ctx)
	}
	b := newTestBroker(t, repo, &stubDialer{}, newPool, 8)

	const goroutines = 10
	pools := make([]*pgxpool.Pool, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pools[i], errs[i] = b.GetConnection(context.Background(), "user1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, pools[0], pools[i])
	}
	assert.Equal(t, int32(1), poolCalls.Load(), "concurrent cold requests must build exactly once")
}

func TestBroker_GetConnection_NoConfig(t *testing.T) {
	b := newTestBroker(t, &stubRepo{}, &stubDialer{}, func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		return newLazyPool(ctx)
	}, 8)

	_, err := b.GetConnection(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestBroker_GetConnection_DecryptFailure(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return &port.ConfigRecord{
			UserID: userID,
			Type:   domain.ConnectionDirect,
			Direct: &port.DirectRecord{DatabaseURL: []byte("garbage-ciphertext")},
		}, nil
	}
	b := newTestBroker(t, repo, &stubDialer{}, func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		return newLazyPool(ctx)
	}, 8)

	_, err := b.GetConnection(context.Background(), "user1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecryption)
}

func TestBroker_SSH_DialsThroughTunnel(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return sshRecord(userID), nil
	}

	tun := &fakeTunnel{addr: "127.0.0.1:15432"}
	var gotSpec port.TunnelSpec
	dialer := &stubDialer{openFn: func(_ context.Context, spec port.TunnelSpec) (port.TunnelHandle, error) {
		gotSpec = spec
		return tun, nil
	}}

	var gotConnString string
	newPool := func(ctx context.Context, connString string) (*pgxpool.Pool, error) {
		gotConnString = connString
		return newLazyPool(ctx)
	}
	b := newTestBroker(t, repo, dialer, newPool, 8)

	_, err := b.GetConnection(context.Background(), "user1")
	require.NoError(t, err)

	// The tunnel spec carries the decrypted SSH fields and the database
	// address as seen from the SSH host.
	assert.Equal(t, "bastion.example.com", gotSpec.Host)
	assert.Equal(t, 22, gotSpec.Port)
	assert.Equal(t, "deploy", gotSpec.User)
	assert.Equal(t, "/keys/user1/id_ed25519", gotSpec.KeyPath)
	assert.Contains(t, gotSpec.HostKey, "ssh-ed25519")
	assert.Equal(t, "10.0.0.5:5433", gotSpec.RemoteAddr)

	// The pool dials the tunnel's loopback endpoint with the original
	// credentials and database.
	cfg, err := pgxpool.ParseConfig(gotConnString)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.ConnConfig.Host)
	assert.Equal(t, uint16(15432), cfg.ConnConfig.Port)
	assert.Equal(t, "app", cfg.ConnConfig.User)
	assert.Equal(t, "pw", cfg.ConnConfig.Password)
	assert.Equal(t, "appdb", cfg.ConnConfig.Database)
}

func TestBroker_SSH_TunnelClosedWhenPoolFails(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return sshRecord(userID), nil
	}
	tun := &fakeTunnel{addr: "127.0.0.1:15432"}
	dialer := &stubDialer{openFn: func(context.Context, port.TunnelSpec) (port.TunnelHandle, error) {
		return tun, nil
	}}
	newPool := func(context.Context, string) (*pgxpool.Pool, error) {
		return nil, fmt.Errorf("connection refused")
	}
	b := newTestBroker(t, repo, dialer, newPool, 8)

	_, err := b.GetConnection(context.Background(), "user1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, 1, tun.closeCount(), "failed pool build must not leak the tunnel")
}

func TestBroker_SSH_DialFailure(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return sshRecord(userID), nil
	}
	dialer := &stubDialer{openFn: func(context.Context, port.TunnelSpec) (port.TunnelHandle, error) {
		return nil, fmt.Errorf("ssh: handshake failed")
	}}
	b := newTestBroker(t, repo, dialer, func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		return newLazyPool(ctx)
	}, 8)

	_, err := b.GetConnection(context.Background(), "user1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Contains(t, err.Error(), "handshake failed")
}

func TestBroker_Invalidate_ClosesTunnel(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return sshRecord(userID), nil
	}
	tun := &fakeTunnel{addr: "127.0.0.1:15432"}
	dialer := &stubDialer{openFn: func(context.Context, port.TunnelSpec) (port.TunnelHandle, error) {
		return tun, nil
	}}
	b := newTestBroker(t, repo, dialer, func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		return newLazyPool(ctx)
	}, 8)

	_, err := b.GetConnection(context.Background(), "user1")
	require.NoError(t, err)

	b.Invalidate("user1")

	// Eviction closes in the background.
	require.Eventually(t, func() bool {
		return tun.closeCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroker_CapacityEvictsLRU(t *testing.T) {
	var mu sync.Mutex
	activeCalls := map[string]int{}

	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		mu.Lock()
		activeCalls[userID]++
		mu.Unlock()
		return directRecord(userID, "postgres://app:pw@db.internal:5432/"+userID), nil
	}
	b := newTestBroker(t, repo, &stubDialer{}, func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		return newLazyPool(ctx)
	}, 2)

	ctx := context.Background()
	for _, user := range []string{"u1", "u2", "u3"} {
		_, err := b.GetConnection(ctx, user)
		require.NoError(t, err)
	}

	// u1 was evicted when u3 was admitted; u2 and u3 are still cached.
	_, err := b.GetConnection(ctx, "u2")
	require.NoError(t, err)
	_, err = b.GetConnection(ctx, "u3")
	require.NoError(t, err)
	_, err = b.GetConnection(ctx, "u1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, activeCalls["u1"], "evicted user reloads its config")
	assert.Equal(t, 1, activeCalls["u2"])
	assert.Equal(t, 1, activeCalls["u3"])
}

func TestBroker_TestConnection_DoesNotCache(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return directRecord(userID, "postgres://app:pw@db.internal:5432/app"), nil
	}
	var poolCalls atomic.Int32
	newPool := func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		poolCalls.Add(1)
		return newLazyPool(ctx)
	}
	b := newTestBroker(t, repo, &stubDialer{}, newPool, 8)

	require.NoError(t, b.TestConnection(context.Background(), "user1"))
	assert.Equal(t, int32(1), poolCalls.Load())

	// A test run leaves nothing behind; the next query builds from scratch.
	_, err := b.GetConnection(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), poolCalls.Load())
}

func TestBroker_TestDraft_ValidatesFirst(t *testing.T) {
	var activeCalls atomic.Int32
	repo := &stubRepo{}
	repo.activeFn = func(context.Context, string) (*port.ConfigRecord, error) {
		activeCalls.Add(1)
		return nil, domain.ErrConfigNotFound
	}
	b := newTestBroker(t, repo, &stubDialer{}, func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		return newLazyPool(ctx)
	}, 8)

	err := b.TestDraft(context.Background(), "user1", &domain.ConnectionConfig{
		Type:   domain.ConnectionDirect,
		Direct: &domain.DirectConfig{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int32(0), activeCalls.Load(), "a draft never reads stored config")
}

func TestBroker_TestDraft_Success(t *testing.T) {
	var poolCalls atomic.Int32
	newPool := func(ctx context.Context, _ string) (*pgxpool.Pool, error) {
		poolCalls.Add(1)
		return newLazyPool(ctx)
	}
	b := newTestBroker(t, &stubRepo{}, &stubDialer{}, newPool, 8)

	err := b.TestDraft(context.Background(), "user1", &domain.ConnectionConfig{
		Type:   domain.ConnectionDirect,
		Direct: &domain.DirectConfig{DatabaseURL: "postgres://app:pw@db.internal:5432/app"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), poolCalls.Load())
}

func TestBroker_Wireguard_UsesInternalURL(t *testing.T) {
	repo := &stubRepo{}
	repo.activeFn = func(_ context.Context, userID string) (*port.ConfigRecord, error) {
		return &port.ConfigRecord{
			UserID: userID,
			Type:   domain.ConnectionWireguard,
			Wireguard: &port.WireguardRecord{
				TunnelDefinition:    []byte("enc:[Interface]\nPrivateKey = x\n"),
				InternalDatabaseURL: []byte("enc:postgres://app:pw@10.8.0.10:5432/app"),
			},
		}, nil
	}
	var gotConnString string
	newPool := func(ctx context.Context, connString string) (*pgxpool.Pool, error) {
		gotConnString = connString
		return newLazyPool(ctx)
	}
	b := newTestBroker(t, repo, &stubDialer{}, newPool, 8)

	_, err := b.GetConnection(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@10.8.0.10:5432/app", gotConnString)
}

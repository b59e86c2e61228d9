package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
)

const upsertUser = `
	INSERT INTO connection_users (user_id, active_config_type, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (user_id) DO UPDATE
		SET active_config_type = EXCLUDED.active_config_type,
			updated_at = now()`

const upsertPostgresConfig = `
	INSERT INTO postgres_configs (user_id, database_url_encrypted, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (user_id) DO UPDATE
		SET database_url_encrypted = EXCLUDED.database_url_encrypted,
			updated_at = now()`

const upsertSSHConfig = `
	INSERT INTO ssh_configs (user_id, host_encrypted, port, username_encrypted,
		key_path_encrypted, host_key_encrypted, database_url_encrypted, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	ON CONFLICT (user_id) DO UPDATE
		SET host_encrypted = EXCLUDED.host_encrypted,
			port = EXCLUDED.port,
			username_encrypted = EXCLUDED.username_encrypted,
			key_path_encrypted = EXCLUDED.key_path_encrypted,
			host_key_encrypted = EXCLUDED.host_key_encrypted,
			database_url_encrypted = EXCLUDED.database_url_encrypted,
			updated_at = now()`

const upsertWireguardConfig = `
	INSERT INTO wireguard_configs (user_id, tunnel_config_encrypted, internal_db_url_encrypted, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (user_id) DO UPDATE
		SET tunnel_config_encrypted = EXCLUDED.tunnel_config_encrypted,
			internal_db_url_encrypted = EXCLUDED.internal_db_url_encrypted,
			updated_at = now()`

const queryActiveConfig = `
	SELECT
		u.active_config_type,
		u.updated_at,
		p.database_url_encrypted,
		s.host_encrypted, s.port, s.username_encrypted, s.key_path_encrypted,
		s.host_key_encrypted, s.database_url_encrypted,
		w.tunnel_config_encrypted, w.internal_db_url_encrypted
	FROM connection_users u
	LEFT JOIN postgres_configs p ON p.user_id = u.user_id
	LEFT JOIN ssh_configs s ON s.user_id = u.user_id
	LEFT JOIN wireguard_configs w ON w.user_id = u.user_id
	WHERE u.user_id = $1`

const deleteUser = `DELETE FROM connection_users WHERE user_id = $1`

// ConfigRepositoryAdapter implements port.ConfigRepository on the
// control-plane database. Ciphertext goes in and out untouched; this layer
// never sees plaintext.
type ConfigRepositoryAdapter struct {
	pool *pgxpool.Pool
}

// NewConfigRepository creates a new ConfigRepositoryAdapter.
func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepositoryAdapter {
	return &ConfigRepositoryAdapter{pool: pool}
}

// SaveConfig writes the active-type pointer and the variant row in one
// transaction and clears the other variants, so a reader always sees a
// consistent (pointer, row) pair.
func (a *ConfigRepositoryAdapter) SaveConfig(ctx context.Context, rec *port.ConfigRecord) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertUser, rec.UserID, string(rec.Type)); err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	switch rec.Type {
	case domain.ConnectionDirect:
		_, err = tx.Exec(ctx, upsertPostgresConfig, rec.UserID, rec.Direct.DatabaseURL)
	case domain.ConnectionSSH:
		_, err = tx.Exec(ctx, upsertSSHConfig, rec.UserID,
			rec.SSH.Host, rec.SSH.Port, rec.SSH.Username,
			rec.SSH.KeyPath, rec.SSH.HostKey, rec.SSH.DatabaseURL)
	case domain.ConnectionWireguard:
		_, err = tx.Exec(ctx, upsertWireguardConfig, rec.UserID,
			rec.Wireguard.TunnelDefinition, rec.Wireguard.InternalDatabaseURL)
	default:
		return fmt.Errorf("unknown connection type %q", rec.Type)
	}
	if err != nil {
		return fmt.Errorf("upserting %s config: %w", rec.Type, err)
	}

	if err := deleteOtherVariants(ctx, tx, rec.UserID, rec.Type); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

var variantTables = map[domain.ConnectionType]string{
	domain.ConnectionDirect:    "postgres_configs",
	domain.ConnectionSSH:       "ssh_configs",
	domain.ConnectionWireguard: "wireguard_configs",
}

func deleteOtherVariants(ctx context.Context, tx pgx.Tx, userID string, keep domain.ConnectionType) error {
	for typ, table := range variantTables {
		if typ == keep {
			continue
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", table), userID); err != nil {
			return fmt.Errorf("clearing %s config: %w", typ, err)
		}
	}
	return nil
}

// ActiveConfig loads the configuration selected by the user's active-type
// pointer with one query, so it reads a single MVCC snapshot.
func (a *ConfigRepositoryAdapter) ActiveConfig(ctx context.Context, userID string) (*port.ConfigRecord, error) {
	rec := &port.ConfigRecord{UserID: userID}
	var (
		typ                    string
		pURL                   []byte
		sHost, sUser, sKeyPath []byte
		sHostKey, sURL         []byte
		sPort                  *int
		wDef, wURL             []byte
	)

	err := a.pool.QueryRow(ctx, queryActiveConfig, userID).Scan(
		&typ, &rec.UpdatedAt,
		&pURL,
		&sHost, &sPort, &sUser, &sKeyPath, &sHostKey, &sURL,
		&wDef, &wURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading active config: %w", err)
	}

	rec.Type = domain.ConnectionType(typ)
	switch rec.Type {
	case domain.ConnectionDirect:
		if pURL == nil {
			return nil, domain.Kind(domain.ErrConfigNotFound, fmt.Errorf("active type %s has no stored row", typ))
		}
		rec.Direct = &port.DirectRecord{DatabaseURL: pURL}
	case domain.ConnectionSSH:
		if sPort == nil {
			return nil, domain.Kind(domain.ErrConfigNotFound, fmt.Errorf("active type %s has no stored row", typ))
		}
		rec.SSH = &port.SSHRecord{
			Host:        sHost,
			Port:        *sPort,
			Username:    sUser,
			KeyPath:     sKeyPath,
			HostKey:     sHostKey,
			DatabaseURL: sURL,
		}
	case domain.ConnectionWireguard:
		if wDef == nil {
			return nil, domain.Kind(domain.ErrConfigNotFound, fmt.Errorf("active type %s has no stored row", typ))
		}
		rec.Wireguard = &port.WireguardRecord{
			TunnelDefinition:    wDef,
			InternalDatabaseURL: wURL,
		}
	default:
		return nil, fmt.Errorf("unknown stored connection type %q", typ)
	}
	return rec, nil
}

// DeleteConfig removes the user row; variant rows go with it via cascade.
func (a *ConfigRepositoryAdapter) DeleteConfig(ctx context.Context, userID string) error {
	tag, err := a.pool.Exec(ctx, deleteUser, userID)
	if err != nil {
		return fmt.Errorf("deleting config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConfigNotFound
	}
	return nil
}

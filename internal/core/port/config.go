package port

import (
	"context"
	"time"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

// ConfigRecord is the stored, still-encrypted form of a user's connection
// configuration. Exactly one of the variant records is set, selected by
// Type. Field layout mirrors the at-rest encryption policy: everything
// secret is ciphertext, the SSH port stays plaintext.
type ConfigRecord struct {
	UserID    string
	Type      domain.ConnectionType
	Direct    *DirectRecord
	SSH       *SSHRecord
	Wireguard *WireguardRecord
	UpdatedAt time.Time
}

type DirectRecord struct {
	DatabaseURL []byte
}

type SSHRecord struct {
	Host        []byte
	Port        int
	Username    []byte
	KeyPath     []byte
	HostKey     []byte
	DatabaseURL []byte
}

type WireguardRecord struct {
	TunnelDefinition    []byte
	InternalDatabaseURL []byte
}

// ConfigRepository persists at most one active configuration per user.
type ConfigRepository interface {
	// SaveConfig upserts the variant row and the active-type pointer in a
	// single transaction, so a type switch is atomic: readers observe the
	// old config or the new one, never a mixture.
	SaveConfig(ctx context.Context, rec *ConfigRecord) error

	// ActiveConfig loads the configuration the active-type pointer selects.
	// Returns domain.ErrConfigNotFound when the user has none.
	ActiveConfig(ctx context.Context, userID string) (*ConfigRecord, error)

	// DeleteConfig removes the user's configuration and all variant rows.
	// Returns domain.ErrConfigNotFound when there was nothing to delete.
	DeleteConfig(ctx context.Context, userID string) error
}

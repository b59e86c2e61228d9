package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ColdranAI/sqlbase/internal/adapter/crypto"
	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
)

// connectionInvalidator drops a user's cached connection. Satisfied by
// *Broker; narrowed to an interface so tests can observe invalidations.
type connectionInvalidator interface {
	Invalidate(userID string)
}

// ConfigService manages stored connection configs: encrypt on save,
// report status without decrypting, delete. Every successful mutation
// invalidates the user's cached connection so the next query picks up
// the new config.
type ConfigService struct {
	repo   port.ConfigRepository
	cipher port.Encryptor
	broker connectionInvalidator
	logger *slog.Logger
}

func NewConfigService(repo port.ConfigRepository, cipher port.Encryptor, broker connectionInvalidator, logger *slog.Logger) *ConfigService {
	return &ConfigService{
		repo:   repo,
		cipher: cipher,
		broker: broker,
		logger: logger,
	}
}

// Save validates, encrypts and persists the config, replacing whatever
// type was stored before. Connectivity is not checked here; callers
// that want a preflight use Broker.TestDraft.
func (s *ConfigService) Save(ctx context.Context, userID string, cfg *domain.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return domain.Kind(domain.ErrValidation, err)
	}

	rec, err := encryptConfig(s.cipher, userID, cfg)
	if err != nil {
		return err
	}

	if err := s.repo.SaveConfig(ctx, rec); err != nil {
		return fmt.Errorf("saving connection config: %w", err)
	}

	s.broker.Invalidate(userID)
	s.logger.Info("connection config saved",
		slog.String("user_id", userID),
		slog.String("connection_type", string(cfg.Type)),
	)
	return nil
}

// Status reports which connection type is configured and when it was
// last updated. No ciphertext is decrypted.
func (s *ConfigService) Status(ctx context.Context, userID string) (*domain.ConfigStatus, error) {
	rec, err := s.repo.ActiveConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.ConfigStatus{
		ConnectionType: rec.Type,
		ConfiguredAt:   rec.UpdatedAt,
	}, nil
}

// Delete removes the stored config and drops any cached connection.
func (s *ConfigService) Delete(ctx context.Context, userID string) error {
	if err := s.repo.DeleteConfig(ctx, userID); err != nil {
		return err
	}
	s.broker.Invalidate(userID)
	s.logger.Info("connection config deleted", slog.String("user_id", userID))
	return nil
}

// encryptConfig turns a validated config into its storage record. Each
// sensitive field is sealed separately under the user's derived key;
// plaintext buffers are zeroed as soon as the ciphertext exists.
func encryptConfig(cipher port.Encryptor, userID string, cfg *domain.ConnectionConfig) (*port.ConfigRecord, error) {
	seal := func(plaintext string) ([]byte, error) {
		buf := []byte(plaintext)
		defer crypto.ZeroBytes(buf)
		ct, err := cipher.Encrypt(userID, cfg.Type, buf)
		if err != nil {
			return nil, fmt.Errorf("encrypting config field: %w", err)
		}
		return ct, nil
	}

	rec := &port.ConfigRecord{
		UserID: userID,
		Type:   cfg.Type,
	}

	switch cfg.Type {
	case domain.ConnectionDirect:
		ct, err := seal(cfg.Direct.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rec.Direct = &port.DirectRecord{DatabaseURL: ct}

	case domain.ConnectionSSH:
		sr := &port.SSHRecord{Port: cfg.SSH.Port}
		var err error
		if sr.Host, err = seal(cfg.SSH.Host); err != nil {
			return nil, err
		}
		if sr.Username, err = seal(cfg.SSH.User); err != nil {
			return nil, err
		}
		if sr.KeyPath, err = seal(cfg.SSH.KeyPath); err != nil {
			return nil, err
		}
		if sr.HostKey, err = seal(cfg.SSH.HostKey); err != nil {
			return nil, err
		}
		if sr.DatabaseURL, err = seal(cfg.SSH.DatabaseURL); err != nil {
			return nil, err
		}
		rec.SSH = sr

	case domain.ConnectionWireguard:
		wr := &port.WireguardRecord{}
		var err error
		if wr.TunnelDefinition, err = seal(cfg.Wireguard.TunnelDefinition); err != nil {
			return nil, err
		}
		if wr.InternalDatabaseURL, err = seal(cfg.Wireguard.InternalDatabaseURL); err != nil {
			return nil, err
		}
		rec.Wireguard = wr

	default:
		return nil, fmt.Errorf("unsupported connection type %q", cfg.Type)
	}

	return rec, nil
}

// decryptConfig reverses encryptConfig. Any failure to open a field is
// reported as a decryption error: the key, the ciphertext or the stored
// type no longer line up.
func decryptConfig(cipher port.Encryptor, rec *port.ConfigRecord) (*domain.ConnectionConfig, error) {
	open := func(ciphertext []byte) (string, error) {
		buf, err := cipher.Decrypt(rec.UserID, rec.Type, ciphertext)
		if err != nil {
			return "", domain.Kind(domain.ErrDecryption, err)
		}
		defer crypto.ZeroBytes(buf)
		return string(buf), nil
	}

	cfg := &domain.ConnectionConfig{Type: rec.Type}

	switch rec.Type {
	case domain.ConnectionDirect:
		url, err := open(rec.Direct.DatabaseURL)
		if err != nil {
			return nil, err
		}
		cfg.Direct = &domain.DirectConfig{DatabaseURL: url}

	case domain.ConnectionSSH:
		sc := &domain.SSHConfig{Port: rec.SSH.Port}
		var err error
		if sc.Host, err = open(rec.SSH.Host); err != nil {
			return nil, err
		}
		if sc.User, err = open(rec.SSH.Username); err != nil {
			return nil, err
		}
		if sc.KeyPath, err = open(rec.SSH.KeyPath); err != nil {
			return nil, err
		}
		if sc.HostKey, err = open(rec.SSH.HostKey); err != nil {
			return nil, err
		}
		if sc.DatabaseURL, err = open(rec.SSH.DatabaseURL); err != nil {
			return nil, err
		}
		cfg.SSH = sc

	case domain.ConnectionWireguard:
		wc := &domain.WireguardConfig{}
		var err error
		if wc.TunnelDefinition, err = open(rec.Wireguard.TunnelDefinition); err != nil {
			return nil, err
		}
		if wc.InternalDatabaseURL, err = open(rec.Wireguard.InternalDatabaseURL); err != nil {
			return nil, err
		}
		cfg.Wireguard = wc

	default:
		return nil, fmt.Errorf("unsupported stored connection type %q", rec.Type)
	}

	return cfg, nil
}

package port

import "github.com/ColdranAI/sqlbase/internal/core/domain"

// Encryptor encrypts and decrypts configuration secrets. Keys are derived
// per (user, config type), so ciphertext written for one user can never be
// opened as another. Used by services without depending on a specific
// encryption implementation.
type Encryptor interface {
	Encrypt(userID string, configType domain.ConnectionType, plaintext []byte) ([]byte, error)
	Decrypt(userID string, configType domain.ConnectionType, ciphertext []byte) ([]byte, error)
}

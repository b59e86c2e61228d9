package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

// keyInfoPrefix versions the derivation schedule. Changing it invalidates
// every stored ciphertext, so it only moves with a migration.
const keyInfoPrefix = "sqlbase/config/v1"

// ConfigCipher provides AES-256-GCM encryption of connection secrets with
// a per-(user, config type) key derived from a single master key via
// HKDF-SHA256. It implements port.Encryptor.
//
// Derived keys are computed on every call and wiped afterwards; only the
// master key stays resident.
type ConfigCipher struct {
	master []byte
}

// NewConfigCipher creates a ConfigCipher from a hex-encoded 256-bit master key.
func NewConfigCipher(hexKey string) (*ConfigCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &ConfigCipher{master: key}, nil
}

// Encrypt encrypts plaintext under the key derived for (userID, configType).
// Returns nonce || ciphertext.
func (c *ConfigCipher) Encrypt(userID string, configType domain.ConnectionType, plaintext []byte) ([]byte, error) {
	gcm, key, err := c.aead(userID, configType)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext (nonce || ciphertext) under the key derived
// for (userID, configType). Ciphertext written for a different user or
// config type fails authentication.
func (c *ConfigCipher) Decrypt(userID string, configType domain.ConnectionType, ciphertext []byte) ([]byte, error) {
	gcm, key, err := c.aead(userID, configType)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ct, nil)
}

// aead derives the per-scope key and builds a fresh AEAD around it. The
// caller owns the returned key bytes and must zero them.
func (c *ConfigCipher) aead(userID string, configType domain.ConnectionType) (cipher.AEAD, []byte, error) {
	info := []byte(keyInfoPrefix + "|" + userID + "|" + string(configType))
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.master, nil, info), key); err != nil {
		return nil, nil, fmt.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		ZeroBytes(key)
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		ZeroBytes(key)
		return nil, nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, key, nil
}

// ZeroBytes overwrites b in place. Callers use it to scrub plaintext
// buffers once they are no longer needed.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Package crypto seals secrets stored at rest, chiefly RTMP stream keys.
//
// Values are sealed with AES-256-GCM and stored base64 encoded next to a version number, so a
// deployment can start without ENCRYPTION_KEY and migrate existing plaintext rows later
// (see cmd/migrate-stream-keys).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Storage versions recorded alongside sealed values.
const (
	VersionPlain  = 0
	VersionAESGCM = 1
)

// ErrKeyRequired is returned when opening a sealed value without a configured key.
var ErrKeyRequired = errors.New("value is sealed but ENCRYPTION_KEY is not configured")

// Sealer encrypts and decrypts text values. A nil *Sealer stores plaintext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a base64-encoded 32-byte key (openssl rand -base64 32).
func NewSealer(base64Key string) (*Sealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Enabled reports whether values will actually be encrypted.
func (s *Sealer) Enabled() bool { return s != nil && s.aead != nil }

// Seal encrypts plaintext bound to aad (typically the owning row id) and returns the stored
// form and its version. Empty values are stored as-is.
func (s *Sealer) Seal(plaintext, aad string) (string, int, error) {
	if plaintext == "" || !s.Enabled() {
		return plaintext, VersionPlain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", 0, fmt.Errorf("generate nonce: %w", err)
	}
	// nonce || ciphertext || tag
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return base64.StdEncoding.EncodeToString(out), VersionAESGCM, nil
}

// Open reverses Seal for a value stored with the given version.
func (s *Sealer) Open(stored string, version int, aad string) (string, error) {
	switch version {
	case VersionPlain:
		return stored, nil
	case VersionAESGCM:
	default:
		return "", fmt.Errorf("unknown seal version %d", version)
	}
	if stored == "" {
		return "", nil
	}
	if !s.Enabled() {
		return "", ErrKeyRequired
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return "", fmt.Errorf("ciphertext too short: got %d bytes", len(raw))
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(aad))
	if err != nil {
		return "", fmt.Errorf("decryption failed: authentication or integrity check failed")
	}
	return string(plain), nil
}

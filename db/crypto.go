/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// encPrefix marks values encrypted with the v1 scheme (AES-256-GCM).
// Stored values without the prefix are treated as legacy plaintext so that
// databases created before encryption was enabled remain readable.
const encPrefix = "enc:v1:"

// tokenCipher encrypts and decrypts OAuth token material at rest
type tokenCipher struct {
	aead cipher.AEAD
}

// newTokenCipher creates a cipher from a 32-byte AES-256 key
func newTokenCipher(key []byte) (*tokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes, got %d", ErrInvalidEncryptionKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncryptionKey, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncryptionKey, err)
	}

	return &tokenCipher{aead: aead}, nil
}

// encrypt returns the prefixed ciphertext for a plaintext value. Empty
// values are stored as-is.
func (c *tokenCipher) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt. Values without the encryption prefix are
// returned unchanged.
func (c *tokenCipher) decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted value: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("encrypted value too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}

	return string(plaintext), nil
}

// sealTokens encrypts the token fields of a record in place when a cipher
// is configured
func (d *DB) sealTokens(record *ConnectionRecord) error {
	if d.cipher == nil {
		return nil
	}

	access, err := d.cipher.encrypt(record.AccessToken)
	if err != nil {
		return NewDatabaseError("seal_tokens", err)
	}

	refresh, err := d.cipher.encrypt(record.RefreshToken)
	if err != nil {
		return NewDatabaseError("seal_tokens", err)
	}

	record.AccessToken = access
	record.RefreshToken = refresh
	return nil
}

// openTokens decrypts the token fields of a record in place. Plaintext
// legacy values pass through unchanged.
func (d *DB) openTokens(record *ConnectionRecord) error {
	if d.cipher == nil {
		return nil
	}

	access, err := d.cipher.decrypt(record.AccessToken)
	if err != nil {
		return NewDatabaseError("open_tokens", err)
	}

	refresh, err := d.cipher.decrypt(record.RefreshToken)
	if err != nil {
		return NewDatabaseError("open_tokens", err)
	}

	record.AccessToken = access
	record.RefreshToken = refresh
	return nil
}

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrBadKey indicates the configured key is not a 32-byte hex string.
	ErrBadKey = errors.New("vault: key must be 32 hex-encoded bytes (AES-256)")
	// ErrDecrypt indicates a ciphertext could not be opened with the configured key.
	ErrDecrypt = errors.New("vault: decrypt failed")
)

// Vault seals bot credentials at rest with AES-256-GCM. Ciphertexts are
// base64(nonce || sealed) so they can live in a text column.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a hex-encoded 32-byte key.
func New(hexKey string) (*Vault, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrBadKey
	}
	if len(raw) != 32 {
		return nil, ErrBadKey
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: gcm init: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals a secret and returns an opaque printable token.
func (v *Vault) Encrypt(secret string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt.
func (v *Vault) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecrypt
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns+1 {
		return "", ErrDecrypt
	}
	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm names a symmetric AEAD construction. The value doubles as the
// encryptor's registry name.
type Algorithm string

const (
	AES256GCM         Algorithm = "aes"
	XChaCha20Poly1305 Algorithm = "xchacha"
)

const (
	hkdfSalt         = "encxorm-field-encryption"
	derivedKeyLength = 32
)

var (
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrInvalidEncoding  = errors.New("ciphertext is not valid base64url")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// AEAD encrypts field values with a key derived from a master secret.
// Ciphertext is base64url(nonce || sealed), without padding.
type AEAD struct {
	algorithm Algorithm
	aead      cipher.AEAD
}

// NewAEAD derives the data key for algorithm from master with HKDF-SHA256
// and returns a ready encryptor. The algorithm name is bound into the
// derivation, so the same key file yields different keys per algorithm.
func NewAEAD(algorithm Algorithm, master []byte) (*AEAD, error) {
	if len(master) < 16 {
		return nil, fmt.Errorf("master key too short: need at least 16 bytes, got %d", len(master))
	}

	key := make([]byte, derivedKeyLength)
	reader := hkdf.New(sha256.New, master, []byte(hkdfSalt), []byte(algorithm))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", algorithm, err)
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch algorithm {
	case AES256GCM:
		block, blockErr := aes.NewCipher(key)
		if blockErr != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", blockErr)
		}
		aead, err = cipher.NewGCM(block)
	case XChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s AEAD: %w", algorithm, err)
	}

	return &AEAD{algorithm: algorithm, aead: aead}, nil
}

// Algorithm returns the construction in use.
func (e *AEAD) Algorithm() Algorithm {
	return e.algorithm
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *AEAD) Encrypt(ctx context.Context, plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *AEAD) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}

	nonceSize := e.aead.NonceSize()
	if len(raw) < nonceSize+e.aead.Overhead() {
		return "", ErrCiphertextShort
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

package crypto

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Age encrypts field values to an X25519 recipient and decrypts them with the
// matching identity. Ciphertext is the binary age file, base64url encoded.
type Age struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAge parses an "AGE-SECRET-KEY-1..." identity string.
func NewAge(identity string) (*Age, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identity: %w", err)
	}
	return &Age{identity: id, recipient: id.Recipient()}, nil
}

// GenerateAgeIdentity returns a new identity in its textual form, ready to
// be written to a key file.
func GenerateAgeIdentity() ([]byte, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate age identity: %w", err)
	}
	return []byte(id.String() + "\n"), nil
}

// Recipient returns the public half of the identity.
func (a *Age) Recipient() string {
	return a.recipient.String()
}

func (a *Age) Encrypt(ctx context.Context, plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, a.recipient)
	if err != nil {
		return "", fmt.Errorf("failed to start age encryption: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("failed to write age payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish age encryption: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

func (a *Age) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), a.identity)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read age payload: %w", err)
	}
	return string(plaintext), nil
}

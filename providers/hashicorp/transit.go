package hashicorp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/encxorm"
)

// EncryptorName is the registry name of the Vault Transit encryptor.
const EncryptorName = "vault-transit"

// TransitEncryptor implements encxorm.Encryptor with the Vault Transit
// engine. Keys never leave Vault; ciphertext has the form "vault:v1:...".
type TransitEncryptor struct {
	client *api.Client
	mount  string
	key    string
}

// NewTransitEncryptor connects to Vault using cfg. See newClient for the
// environment fallbacks.
func NewTransitEncryptor(ctx context.Context, cfg encxorm.VaultConfig) (*TransitEncryptor, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewTransitEncryptorWithClient(client, cfg.Mount, cfg.KeyName)
}

// NewTransitEncryptorWithClient uses an existing client. An empty mount
// defaults to "transit".
func NewTransitEncryptorWithClient(client *api.Client, mount, key string) (*TransitEncryptor, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: vault client cannot be nil", encxorm.ErrInvalidConfiguration)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: vault transit key name cannot be empty", encxorm.ErrInvalidConfiguration)
	}
	if mount == "" {
		mount = "transit"
	}
	return &TransitEncryptor{client: client, mount: mount, key: key}, nil
}

// CreateKey creates the transit key as aes256-gcm96. Creating an existing
// key is a no-op in Vault.
func (t *TransitEncryptor) CreateKey(ctx context.Context) error {
	_, err := t.client.Logical().WriteWithContext(ctx, t.path("keys"), map[string]interface{}{
		"type": "aes256-gcm96",
	})
	if err != nil {
		return fmt.Errorf("failed to create transit key '%s': %w", t.key, err)
	}
	return nil
}

func (t *TransitEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	// Vault Transit expects base64-encoded plaintext
	resp, err := t.client.Logical().WriteWithContext(ctx, t.path("encrypt"), map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString([]byte(plaintext)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt with key '%s': %w", t.key, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("no response from Vault Transit encrypt")
	}

	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("ciphertext not found in response")
	}
	return ciphertext, nil
}

func (t *TransitEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	resp, err := t.client.Logical().WriteWithContext(ctx, t.path("decrypt"), map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to decrypt with key '%s': %w", t.key, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("no response from Vault Transit decrypt")
	}

	encoded, ok := resp.Data["plaintext"].(string)
	if !ok {
		return "", fmt.Errorf("plaintext not found in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode plaintext: %w", err)
	}
	return string(plaintext), nil
}

func (t *TransitEncryptor) path(op string) string {
	return fmt.Sprintf("%s/%s/%s", t.mount, op, t.key)
}

// Register adds the vault-transit encryptor to r. Vault is only contacted
// when the encryptor is selected.
func Register(r *encxorm.Registry, cfg encxorm.VaultConfig) error {
	return r.Register(EncryptorName, func(ctx context.Context) (encxorm.Encryptor, error) {
		return NewTransitEncryptor(ctx, cfg)
	})
}

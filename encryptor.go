package encxorm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Encryptor turns plaintext field values into ciphertext and back.
//
// Implementations must return ciphertext that never ends with Marker; the
// processor appends it. Failures (wrong key, corrupted or foreign input) are
// returned as errors and surface to callers as *CryptoError.
//
// Implementations:
//   - XChaCha20-Poly1305 / AES-256-GCM key-file encryptors: RegisterBuiltinEncryptors
//   - age X25519 identity file: RegisterBuiltinEncryptors
//   - HashiCorp Vault Transit: github.com/hengadev/encxorm/providers/hashicorp.TransitEncryptor
//   - AWS KMS: github.com/hengadev/encxorm/providers/aws.KMSEncryptor
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// EncryptorFactory builds a named encryptor on demand. Factories are only
// invoked when the encryptor is selected, so key material is not read for
// encryptors that are never used.
type EncryptorFactory func(ctx context.Context) (Encryptor, error)

// Registry maps encryptor names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EncryptorFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]EncryptorFactory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory EncryptorFactory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: encryptor name cannot be empty", ErrInvalidConfiguration)
	}
	if factory == nil {
		return fmt.Errorf("%w: factory for encryptor '%s' cannot be nil", ErrInvalidConfiguration, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: encryptor '%s' already registered", ErrInvalidConfiguration, name)
	}
	r.factories[name] = factory
	return nil
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New builds the encryptor registered under name.
func (r *Registry) New(ctx context.Context, name string) (Encryptor, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownEncryptorError{Name: name, Supported: r.Names()}
	}

	enc, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build encryptor '%s': %w", name, err)
	}
	return enc, nil
}

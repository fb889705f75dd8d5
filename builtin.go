package encxorm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hengadev/encxorm/internal/crypto"
)

// Names of the key-file encryptors registered by RegisterBuiltinEncryptors.
const (
	EncryptorAES     = string(crypto.AES256GCM)
	EncryptorXChaCha = string(crypto.XChaCha20Poly1305)
	EncryptorAge     = "age"
)

var (
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = crypto.ErrKeyNotFound
)

// KeySource loads and stores the key material of one encryptor.
type KeySource = crypto.KeySource

// KeySources maps an encryptor name to where its key lives.
type KeySources func(name string) KeySource

// KeyFilePath returns "<dir>/.<name>.key".
func KeyFilePath(dir, name string) string {
	return filepath.Join(dir, "."+name+".key")
}

// FileKeys keeps each key in its own file under dir.
func FileKeys(dir string) KeySources {
	return func(name string) KeySource {
		return crypto.NewFileKeySource(KeyFilePath(dir, name))
	}
}

var keyGenerators = map[string]func() ([]byte, error){
	EncryptorAES:     crypto.GenerateMasterKey,
	EncryptorXChaCha: crypto.GenerateMasterKey,
	EncryptorAge:     crypto.GenerateAgeIdentity,
}

// UsesKeyFile reports whether the named encryptor reads its key from a
// KeySource, as opposed to a remote key service.
func UsesKeyFile(name string) bool {
	_, ok := keyGenerators[name]
	return ok
}

// RegisterBuiltinEncryptors registers the aes, xchacha and age encryptors.
// Their key is read from keys(name) when first used and generated if
// missing.
func RegisterBuiltinEncryptors(r *Registry, keys KeySources) error {
	if keys == nil {
		return fmt.Errorf("%w: key sources cannot be nil", ErrInvalidConfiguration)
	}

	for _, alg := range []crypto.Algorithm{crypto.AES256GCM, crypto.XChaCha20Poly1305} {
		alg := alg
		name := string(alg)
		err := r.Register(name, func(ctx context.Context) (Encryptor, error) {
			stored, err := crypto.LoadOrGenerate(ctx, keys(name), keyGenerators[name])
			if err != nil {
				return nil, err
			}
			master, err := crypto.DecodeMasterKey(stored)
			if err != nil {
				return nil, err
			}
			return crypto.NewAEAD(alg, master)
		})
		if err != nil {
			return err
		}
	}

	return r.Register(EncryptorAge, func(ctx context.Context) (Encryptor, error) {
		identity, err := crypto.LoadOrGenerate(ctx, keys(EncryptorAge), keyGenerators[EncryptorAge])
		if err != nil {
			return nil, err
		}
		return crypto.NewAge(string(identity))
	})
}

// GenerateKey writes fresh key material for a key-file encryptor. An
// existing key is only replaced when force is set; values encrypted with the
// old key can no longer be decrypted.
func GenerateKey(ctx context.Context, name string, src KeySource, force bool) error {
	generate, ok := keyGenerators[name]
	if !ok {
		return fmt.Errorf("%w: encryptor '%s' does not use a key file", ErrInvalidConfiguration, name)
	}

	exists, err := src.Exists(ctx)
	if err != nil {
		return err
	}
	if exists && !force {
		return fmt.Errorf("%w for encryptor '%s'", ErrKeyExists, name)
	}

	key, err := generate()
	if err != nil {
		return err
	}
	return src.Store(ctx, key)
}

// BuildRegistry registers the key-file encryptors reading keys from keys,
// or from cfg.SecretDirectory when keys is nil. It then runs each extra
// registration and checks that cfg.Encryptor is among the result.
func BuildRegistry(cfg *Config, keys KeySources, extra ...func(*Registry) error) (*Registry, error) {
	if keys == nil {
		keys = FileKeys(cfg.SecretDirectory)
	}
	registry := NewRegistry()
	if err := RegisterBuiltinEncryptors(registry, keys); err != nil {
		return nil, err
	}
	for _, register := range extra {
		if err := register(registry); err != nil {
			return nil, fmt.Errorf("failed to register encryptors: %w", err)
		}
	}
	if !registry.Has(cfg.Encryptor) {
		return nil, &UnknownEncryptorError{Name: cfg.Encryptor, Supported: registry.Names()}
	}
	return registry, nil
}

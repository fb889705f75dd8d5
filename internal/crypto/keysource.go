package crypto

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrKeyNotFound = errors.New("key not found")

// KeySource loads and stores the raw key material behind one encryptor.
type KeySource interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, key []byte) error
	Exists(ctx context.Context) (bool, error)
}

// FileKeySource keeps key material in a single file with 0600 permissions.
type FileKeySource struct {
	path string
}

func NewFileKeySource(path string) *FileKeySource {
	return &FileKeySource{path: path}
}

// Path returns the file the key is read from.
func (f *FileKeySource) Path() string {
	return f.path
}

func (f *FileKeySource) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileKeySource) Store(ctx context.Context, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(f.path, key, 0o600); err != nil {
		return fmt.Errorf("failed to write key file %s: %w", f.path, err)
	}
	return nil
}

func (f *FileKeySource) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat key file %s: %w", f.path, err)
}

// LoadOrGenerate returns the stored key, creating and storing one with
// generate when the source is empty.
func LoadOrGenerate(ctx context.Context, src KeySource, generate func() ([]byte, error)) ([]byte, error) {
	exists, err := src.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return src.Load(ctx)
	}

	key, err := generate()
	if err != nil {
		return nil, err
	}
	if err := src.Store(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateMasterKey returns 32 random bytes, hex encoded for storage.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return []byte(hex.EncodeToString(key) + "\n"), nil
}

// DecodeMasterKey parses the stored form written by GenerateMasterKey.
func DecodeMasterKey(stored []byte) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(string(stored)))
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	return key, nil
}

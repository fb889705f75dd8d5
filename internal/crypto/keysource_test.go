package crypto

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeySource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", ".xchacha.key")
	src := NewFileKeySource(path)
	assert.Equal(t, path, src.Path())

	exists, err := src.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = src.Load(ctx)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, src.Store(ctx, []byte("key material")))

	exists, err = src.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("key material"), data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadOrGenerate(t *testing.T) {
	ctx := context.Background()
	src := NewFileKeySource(filepath.Join(t.TempDir(), ".aes.key"))

	calls := 0
	generate := func() ([]byte, error) {
		calls++
		return GenerateMasterKey()
	}

	first, err := LoadOrGenerate(ctx, src, generate)
	require.NoError(t, err)
	second, err := LoadOrGenerate(ctx, src, generate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestLoadOrGenerate_GenerateError(t *testing.T) {
	ctx := context.Background()
	src := NewFileKeySource(filepath.Join(t.TempDir(), ".aes.key"))
	boom := errors.New("no entropy")

	_, err := LoadOrGenerate(ctx, src, func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	exists, err := src.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDecodeMasterKey(t *testing.T) {
	stored, err := GenerateMasterKey()
	require.NoError(t, err)

	key, err := DecodeMasterKey(stored)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = DecodeMasterKey([]byte("zz-not-hex"))
	assert.Error(t, err)
}

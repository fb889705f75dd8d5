package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/encxorm"
	"github.com/hengadev/encxorm/internal/monitoring"
)

type account struct {
	ID    int
	Email string
	SSN   string `encx:"encrypt"`
}

type note struct {
	Body string
}

type fixture struct {
	source   *encxorm.MemorySource
	accounts []*account
	keyDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{source: encxorm.NewMemorySource(), keyDir: t.TempDir()}
	for i := 1; i <= 3; i++ {
		a := &account{ID: i, Email: fmt.Sprintf("a%d@example.com", i), SSN: fmt.Sprintf("ssn-%d", i)}
		f.accounts = append(f.accounts, a)
		f.source.Add(encxorm.EntityType{Name: "account", Prototype: &account{}}, a)
	}
	f.source.Add(encxorm.EntityType{Name: "note", Prototype: &note{}}, &note{Body: "hello"})
	return f
}

func (f *fixture) open(ctx context.Context, configPath string, withStore bool) (*Env, error) {
	registry := encxorm.NewRegistry()
	err := registry.Register("reversible", func(ctx context.Context) (encxorm.Encryptor, error) {
		return encxorm.NewReversibleEncryptor(), nil
	})
	if err != nil {
		return nil, err
	}
	env := &Env{
		Config:   &encxorm.Config{Encryptor: "reversible", BatchSize: 2},
		Logger:   monitoring.Discard(),
		Registry: registry,
		Keys:     encxorm.FileKeys(f.keyDir),
	}
	if withStore {
		env.Source = f.source
	}
	return env, nil
}

func (f *fixture) encrypted() int {
	n := 0
	for _, a := range f.accounts {
		if encxorm.IsMarked(a.SSN) {
			n++
		}
	}
	return n
}

type result struct {
	out    string
	errOut string
	err    error
}

func run(t *testing.T, open Opener, stdin io.Reader, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(open)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	root.SetIn(stdin)
	err := root.ExecuteContext(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func withTerminal(t *testing.T) {
	t.Helper()
	prev := isTerminal
	isTerminal = func(io.Reader) bool { return true }
	t.Cleanup(func() { isTerminal = prev })
}

func TestVersion(t *testing.T) {
	res := run(t, nil, nil, "version")
	require.NoError(t, res.err)
	assert.Equal(t, encxorm.VersionInfo()+"\n", res.out)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	res := run(t, f.open, nil, "status")
	require.NoError(t, res.err)

	assert.Equal(t, "account has 1 properties which are encrypted.\n"+
		"note has no properties which are encrypted.\n"+
		"\n"+
		"2 entities found which are containing 1 encrypted properties.\n", res.out)
}

func TestEncryptDatabase_Yes(t *testing.T) {
	f := newFixture(t)
	res := run(t, f.open, nil, "encrypt-database", "--yes")
	require.NoError(t, res.err)

	assert.Equal(t, 3, f.encrypted())
	assert.Equal(t, 2, f.source.Commits(), "batch size 2 from the configuration")
	assert.Contains(t, res.out, "Processing account\n  2/3\n  3/3\n  account done\n")
	assert.Contains(t, res.out, "account: 3 values encrypted in 2 batches.\n")
	assert.Contains(t, res.out, "Values encrypted: 3 values.")
	assert.NotContains(t, res.out, "Continue with this action?")
}

func TestEncryptDatabase_Arguments(t *testing.T) {
	f := newFixture(t)
	res := run(t, f.open, nil, "encrypt-database", "reversible", "1", "--yes")
	require.NoError(t, res.err)
	assert.Equal(t, 3, f.source.Commits())
	assert.Equal(t, encxorm.Apply("312d6e7373"), f.accounts[0].SSN)
}

func TestEncryptDatabase_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
		stderr  string
	}{
		{
			name:    "unknown encryptor",
			args:    []string{"encrypt-database", "rot13", "--yes"},
			wantErr: encxorm.ErrUnknownEncryptor,
			stderr:  "Given encryptor does not exist.\nSupported encryptors: reversible\n",
		},
		{
			name:    "bad batch size",
			args:    []string{"encrypt-database", "reversible", "zero", "--yes"},
			wantErr: encxorm.ErrInvalidConfiguration,
		},
		{
			name:    "non-positive batch size",
			args:    []string{"encrypt-database", "reversible", "0", "--yes"},
			wantErr: encxorm.ErrInvalidConfiguration,
		},
		{
			name:    "not a terminal",
			args:    []string{"encrypt-database"},
			wantErr: errNotInteractive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := run(t, f.open, nil, tt.args...)
			assert.ErrorIs(t, res.err, tt.wantErr)
			assert.Equal(t, tt.stderr, res.errOut)
			assert.Equal(t, 0, f.encrypted())
			assert.Equal(t, 0, f.source.Commits())
		})
	}
}

func TestEncryptDatabase_Confirmation(t *testing.T) {
	withTerminal(t)

	tests := []struct {
		answer  string
		encrypt bool
	}{
		{answer: "y\n", encrypt: true},
		{answer: "YES\n", encrypt: true},
		{answer: "yes", encrypt: true},
		{answer: "\n", encrypt: false},
		{answer: "no\n", encrypt: false},
		{answer: "yep\n", encrypt: false},
		{answer: "", encrypt: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.answer), func(t *testing.T) {
			f := newFixture(t)
			res := run(t, f.open, strings.NewReader(tt.answer), "encrypt-database")
			require.NoError(t, res.err)

			assert.Contains(t, res.out, "1 entities found which are containing properties with the encryption tag.")
			assert.Contains(t, res.out, "Which are going to be encrypted with [reversible].")
			if tt.encrypt {
				assert.Equal(t, 3, f.encrypted())
				assert.Contains(t, res.out, "All values are now encrypted.")
			} else {
				assert.Equal(t, 0, f.encrypted())
				assert.Contains(t, res.out, "Aborted, nothing was encrypted.")
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	f := newFixture(t)
	path := encxorm.KeyFilePath(f.keyDir, "xchacha")

	res := run(t, f.open, nil, "generate-key", "xchacha")
	require.NoError(t, res.err)
	assert.Equal(t, "Generated a new key for xchacha at "+path+"\n", res.out)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	res = run(t, f.open, nil, "generate-key", "xchacha")
	assert.ErrorIs(t, res.err, encxorm.ErrKeyExists)
	assert.Contains(t, res.err.Error(), "--force")

	res = run(t, f.open, nil, "generate-key", "xchacha", "--force")
	require.NoError(t, res.err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	res = run(t, f.open, nil, "generate-key")
	assert.ErrorIs(t, res.err, encxorm.ErrInvalidConfiguration, "reversible has no key file")
}

// writeProject creates a sqlite database with three users and a
// configuration pointing at it.
func writeProject(t *testing.T) (configPath string, db *sqlx.DB) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")

	db, err := sqlx.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.MustExec(`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL, ssn TEXT)`)
	for i := 1; i <= 3; i++ {
		db.MustExec(`INSERT INTO users (id, email, ssn) VALUES (?, ?, ?)`, i, fmt.Sprintf("u%d@example.com", i), fmt.Sprintf("ssn-%d", i))
	}

	configPath = filepath.Join(dir, "encxorm.yaml")
	config := fmt.Sprintf(`encryptor: xchacha
secret_directory: %s
batch_size: 2
log:
  level: error
database:
  driver: sqlite3
  dsn: %s
tables:
  - name: users
    columns: [email]
    encrypted: [ssn]
`, dir, dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))
	return configPath, db
}

func TestOpenEnv_SQLite(t *testing.T) {
	configPath, db := writeProject(t)

	res := run(t, OpenEnv, nil, "status", "--config", configPath)
	require.NoError(t, res.err)
	assert.Equal(t, "users has 1 properties which are encrypted.\n\n1 entities found which are containing 1 encrypted properties.\n", res.out)

	res = run(t, OpenEnv, nil, "encrypt-database", "--config", configPath, "--yes")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Values encrypted: 3 values.")

	var ssns []string
	require.NoError(t, db.Select(&ssns, `SELECT ssn FROM users ORDER BY id`))
	require.Len(t, ssns, 3)
	for _, ssn := range ssns {
		assert.True(t, encxorm.IsMarked(ssn), ssn)
	}

	// A second run finds nothing left to encrypt.
	res = run(t, OpenEnv, nil, "encrypt-database", "--config", configPath, "--yes")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Values encrypted: 0 values.")
}

func TestOpenEnv_Errors(t *testing.T) {
	configPath, _ := writeProject(t)

	t.Run("unknown configured encryptor", func(t *testing.T) {
		t.Setenv(encxorm.EnvEncryptor, "rot13")
		res := run(t, OpenEnv, nil, "status", "--config", configPath)
		assert.ErrorIs(t, res.err, encxorm.ErrUnknownEncryptor)
		assert.Contains(t, res.errOut, "Supported encryptors: aes, age, xchacha")
	})

	t.Run("missing dsn", func(t *testing.T) {
		t.Setenv(encxorm.EnvDBDSN, "")
		dir := t.TempDir()
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("secret_directory: "+dir+"\n"), 0o600))
		res := run(t, OpenEnv, nil, "status", "--config", path)
		assert.ErrorIs(t, res.err, encxorm.ErrInvalidConfiguration)
	})

	t.Run("generate-key needs no database", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "keys.yaml")
		require.NoError(t, os.WriteFile(path, []byte("secret_directory: "+dir+"\n"), 0o600))
		res := run(t, OpenEnv, nil, "generate-key", "age", "--config", path)
		require.NoError(t, res.err)
		assert.FileExists(t, encxorm.KeyFilePath(dir, "age"))
	})
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	res := run(t, f.open, nil, "check")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "encryptor reversible")
	assert.Contains(t, res.out, "Overall: healthy\n")

	res = run(t, f.open, nil, "check", "rot13")
	assert.ErrorIs(t, res.err, encxorm.ErrUnknownEncryptor)
}

func TestCheck_SQLite(t *testing.T) {
	configPath, _ := writeProject(t)
	keyPath := encxorm.KeyFilePath(filepath.Dir(configPath), "xchacha")

	res := run(t, OpenEnv, nil, "check", "--config", configPath)
	assert.ErrorIs(t, res.err, errUnhealthy)
	assert.Contains(t, res.out, "key not found")
	assert.Contains(t, res.out, "Overall: unhealthy\n")
	assert.NoFileExists(t, keyPath)

	res = run(t, OpenEnv, nil, "generate-key", "--config", configPath)
	require.NoError(t, res.err)

	res = run(t, OpenEnv, nil, "check", "--config", configPath)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "database")
	assert.Contains(t, res.out, "Overall: healthy\n")
}

package encxorm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "encxorm.yaml", `
encryptor: aes
secret_directory: /var/lib/encxorm
batch_size: 50
database:
  driver: postgres
  dsn: postgres://app@localhost/app
tables:
  - name: users
    columns: [email]
    encrypted: [ssn, phone]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "aes", cfg.Encryptor)
	assert.Equal(t, "/var/lib/encxorm", cfg.SecretDirectory)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, DatabaseConfig{Driver: "postgres", DSN: "postgres://app@localhost/app"}, cfg.Database)
	assert.Equal(t, []TableConfig{{Name: "users", Key: "id", Columns: []string{"email"}, Encrypted: []string{"ssn", "phone"}}}, cfg.Tables)
	assert.Equal(t, LogConfig{Level: "info", Format: "console"}, cfg.Log)
	assert.Equal(t, "transit", cfg.Vault.Mount)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "encxorm.yaml", "encryptor: aes\nbatch_size: 50\n")
	t.Setenv(EnvEncryptor, "age")
	t.Setenv(EnvBatchSize, "7")
	t.Setenv(EnvDBDSN, "file:test.db")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "age", cfg.Encryptor)
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultDBDriver, cfg.Database.Driver)
}

func TestLoadConfigFromEnvironment_Defaults(t *testing.T) {
	for _, key := range []string{EnvEncryptor, EnvSecretDirectory, EnvBatchSize, EnvDBDriver, EnvDBDSN, EnvLogLevel} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfigFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, DefaultEncryptor, cfg.Encryptor)
	assert.Equal(t, DefaultSecretDirectory, cfg.SecretDirectory)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultDBDriver, cfg.Database.Driver)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeFile(t, "bad.yaml", "tables: {"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("batch size not a number", func(t *testing.T) {
		t.Setenv(EnvBatchSize, "many")
		_, err := LoadConfig("")
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		keys []string
	}{
		{
			name: "negative batch size",
			cfg:  Config{BatchSize: -1},
			keys: []string{"batch_size"},
		},
		{
			name: "unknown log settings",
			cfg:  Config{Log: LogConfig{Level: "loud", Format: "xml"}},
			keys: []string{"log.level", "log.format"},
		},
		{
			name: "table problems",
			cfg: Config{Tables: []TableConfig{
				{Name: "users", Encrypted: []string{"ssn"}},
				{Name: "users", Encrypted: []string{"ssn"}},
				{Name: "orders", Columns: []string{"total; drop"}},
			}},
			keys: []string{"tables[1].name", "tables[2].encrypted", "tables[2].columns"},
		},
		{
			name: "missing table name",
			cfg:  Config{Tables: []TableConfig{{Encrypted: []string{"ssn"}}}},
			keys: []string{"tables[0].name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.True(t, IsConfigurationError(err))

			var errs errsx.Map
			require.True(t, errors.As(err, &errs), "expected errsx.Map")
			for _, key := range tt.keys {
				assert.Contains(t, errs, key)
			}
		})
	}
}

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "ENCXORM_TEST_DOTENV=from-file\nENCXORM_TEST_PRESET=from-file\n")
	t.Setenv("ENCXORM_TEST_DOTENV", "")
	os.Unsetenv("ENCXORM_TEST_DOTENV")
	t.Setenv("ENCXORM_TEST_PRESET", "from-env")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	t.Cleanup(func() { os.Unsetenv("ENCXORM_TEST_DOTENV") })

	assert.Equal(t, "from-file", os.Getenv("ENCXORM_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("ENCXORM_TEST_PRESET"))
}

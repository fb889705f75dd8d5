package encxorm

import (
	"fmt"
	"strings"

	"github.com/hengadev/errsx"
)

// Config holds the configuration of the operator CLI and the bundled
// adapters.
//
// This struct contains only data, no behavior beyond validation. It can be
// loaded from a YAML file with LoadConfig, from the environment with
// LoadConfigFromEnvironment, or built in code.
//
// Optional fields (defaults are applied by ApplyDefaults):
//   - Encryptor: registry name of the active encryptor (default: xchacha)
//   - SecretDirectory: directory holding ".<encryptor>.key" files (default: .)
//   - BatchSize: rows committed per migration batch (default: 20)
//   - Database.Driver: database/sql driver name (default: sqlite3)
//
// Example configuration file:
//
//	encryptor: xchacha
//	secret_directory: /var/lib/encxorm
//	batch_size: 50
//	database:
//	  driver: postgres
//	  dsn: postgres://app@localhost/app?sslmode=disable
//	tables:
//	  - name: users
//	    key: id
//	    columns: [email]
//	    encrypted: [ssn, phone]
type Config struct {
	// Encryptor is the registry name of the active encryptor.
	//
	// Bundled names: "aes", "xchacha", "age" (key file based),
	// "vault-transit" (needs Vault) and "aws-kms" (needs AWS).
	Encryptor string `yaml:"encryptor"`

	// SecretDirectory is where key files are read from and generated into.
	SecretDirectory string `yaml:"secret_directory"`

	// BatchSize is the number of rows processed between commits during
	// encrypt-database.
	BatchSize int `yaml:"batch_size"`

	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Vault    VaultConfig    `yaml:"vault"`
	AWS      AWSConfig      `yaml:"aws"`

	// Tables declares the tables holding encrypted columns.
	Tables []TableConfig `yaml:"tables"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`
	// Format is one of json, text, console. Default: console
	Format string `yaml:"format"`
}

// VaultConfig configures the vault-transit encryptor. Address and Token fall
// back to VAULT_ADDR and VAULT_TOKEN when empty.
type VaultConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Mount   string `yaml:"mount"`
	KeyName string `yaml:"key_name"`
}

// AWSConfig configures the aws-kms encryptor and the optional S3 key store.
type AWSConfig struct {
	Region    string `yaml:"region"`
	KMSKeyID  string `yaml:"kms_key_id"`
	KeyBucket string `yaml:"key_bucket"`
	KeyPrefix string `yaml:"key_prefix"`
}

// TableConfig declares one table for bulk migration and status.
type TableConfig struct {
	Name      string   `yaml:"name"`
	Key       string   `yaml:"key"`
	Columns   []string `yaml:"columns"`
	Encrypted []string `yaml:"encrypted"`
}

// ApplyDefaults fills empty optional fields.
func (c *Config) ApplyDefaults() {
	if c.Encryptor == "" {
		c.Encryptor = DefaultEncryptor
	}
	if c.SecretDirectory == "" {
		c.SecretDirectory = DefaultSecretDirectory
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Vault.Mount == "" {
		c.Vault.Mount = "transit"
	}
	for i := range c.Tables {
		if c.Tables[i].Key == "" {
			c.Tables[i].Key = "id"
		}
	}
}

// Validate applies defaults and reports every problem at once.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	errs := make(errsx.Map)
	if strings.TrimSpace(c.Encryptor) != c.Encryptor {
		errs.Set("encryptor", "must not contain surrounding whitespace")
	}
	if c.BatchSize < 0 {
		errs.Set("batch_size", fmt.Sprintf("must be positive, got %d", c.BatchSize))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.Set("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "console":
	default:
		errs.Set("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}

	seen := make(map[string]bool)
	for i, t := range c.Tables {
		field := fmt.Sprintf("tables[%d]", i)
		switch {
		case t.Name == "":
			errs.Set(field+".name", "is required")
		case seen[t.Name]:
			errs.Set(field+".name", fmt.Sprintf("table %q declared twice", t.Name))
		}
		seen[t.Name] = true
		if len(t.Encrypted) == 0 {
			errs.Set(field+".encrypted", "at least one encrypted column is required")
		}
		for _, col := range append(append([]string{t.Key}, t.Columns...), t.Encrypted...) {
			if !isIdentifier(col) {
				errs.Set(field+".columns", fmt.Sprintf("invalid column name %q", col))
			}
		}
		if !isIdentifier(t.Name) && t.Name != "" {
			errs.Set(field+".name", fmt.Sprintf("invalid table name %q", t.Name))
		}
	}

	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errs.AsError())
}

// isIdentifier accepts SQL identifiers made of letters, digits and
// underscores, not starting with a digit.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

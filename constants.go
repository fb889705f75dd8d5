package encxorm

// Struct tag
const (
	// StructTag is the struct tag key read by the TagResolver.
	StructTag = "encx"

	// TagEncrypt marks a string field as encrypted at rest.
	TagEncrypt = "encrypt"

	// TagEmbedded marks a struct (or pointer to struct) field whose own
	// fields are processed recursively with the same direction.
	TagEmbedded = "embedded"

	// TagPlain explicitly marks a field as plain. Equivalent to no tag.
	TagPlain = "-"
)

// Environment variable names
const (
	// EnvEncryptor selects the active encryptor by registry name.
	// Example: "xchacha", "aes", "age", "vault-transit", "aws-kms"
	EnvEncryptor = "ENCXORM_ENCRYPTOR"

	// EnvSecretDirectory is the directory holding key files (".<encryptor>.key").
	// Default: current directory
	EnvSecretDirectory = "ENCXORM_SECRET_DIR"

	// EnvBatchSize overrides the bulk migration batch size.
	// Default: 20
	EnvBatchSize = "ENCXORM_BATCH_SIZE"

	// EnvDBDriver is the database/sql driver name used by the operator CLI.
	EnvDBDriver = "ENCXORM_DB_DRIVER"

	// EnvDBDSN is the data source name used by the operator CLI.
	EnvDBDSN = "ENCXORM_DB_DSN"

	// EnvLogLevel is one of debug, info, warn, error.
	EnvLogLevel = "ENCXORM_LOG_LEVEL"

	// EnvConfigFile is the YAML configuration file read by the operator CLI
	// when --config is not given.
	EnvConfigFile = "ENCXORM_CONFIG"
)

// Default values
const (
	// DefaultEncryptor is used when no encryptor name is configured.
	DefaultEncryptor = "xchacha"

	// DefaultSecretDirectory is where key files live when not configured.
	DefaultSecretDirectory = "."

	// DefaultBatchSize is the number of rows committed per migration batch.
	DefaultBatchSize = 20

	// DefaultDBDriver is the driver used by the operator CLI.
	DefaultDBDriver = "sqlite3"
)

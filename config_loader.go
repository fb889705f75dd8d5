package encxorm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file, applies environment overrides
// and validates the result. An empty path skips the file.
//
// Environment variables, when set, take precedence over the file:
//   - ENCXORM_ENCRYPTOR
//   - ENCXORM_SECRET_DIR
//   - ENCXORM_BATCH_SIZE
//   - ENCXORM_DB_DRIVER
//   - ENCXORM_DB_DSN
//   - ENCXORM_LOG_LEVEL
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvironment(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromEnvironment builds a configuration from environment
// variables only.
func LoadConfigFromEnvironment() (*Config, error) {
	return LoadConfig("")
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnvironment(cfg *Config) error {
	overrideString(&cfg.Encryptor, EnvEncryptor)
	overrideString(&cfg.SecretDirectory, EnvSecretDirectory)
	overrideString(&cfg.Database.Driver, EnvDBDriver)
	overrideString(&cfg.Database.DSN, EnvDBDSN)
	overrideString(&cfg.Log.Level, EnvLogLevel)

	if v, ok := os.LookupEnv(EnvBatchSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidConfiguration, EnvBatchSize, v)
		}
		cfg.BatchSize = n
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

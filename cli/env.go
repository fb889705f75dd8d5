package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/hengadev/encxorm"
	"github.com/hengadev/encxorm/internal/monitoring"
	awsprovider "github.com/hengadev/encxorm/providers/aws"
	"github.com/hengadev/encxorm/providers/hashicorp"
	"github.com/hengadev/encxorm/store/sqlstore"
)

// Env is everything a command needs, built from the configuration.
type Env struct {
	Config   *encxorm.Config
	Logger   *slog.Logger
	Registry *encxorm.Registry
	Keys     encxorm.KeySources

	// Source, Resolver and Ping are nil unless the store was requested.
	Source   encxorm.Source
	Resolver encxorm.Resolver
	Ping     func(ctx context.Context) error

	closers []func() error
}

// Close releases the database connection, if any.
func (e *Env) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Opener builds an Env. withStore is false for commands that never touch
// the database.
type Opener func(ctx context.Context, configPath string, withStore bool) (*Env, error)

// OpenEnv loads .env and the configuration, then wires key sources,
// encryptors and the SQL store.
//
// Keys live in cfg.SecretDirectory unless aws.key_bucket is set, in which
// case they are kept in S3. The vault-transit encryptor is registered when
// vault.key_name is set and aws-kms when aws.kms_key_id is set.
func OpenEnv(ctx context.Context, configPath string, withStore bool) (*Env, error) {
	if err := encxorm.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := encxorm.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	keys := encxorm.FileKeys(cfg.SecretDirectory)
	if cfg.AWS.KeyBucket != "" {
		keys, err = awsprovider.NewS3KeySources(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
	}

	var extra []func(*encxorm.Registry) error
	if cfg.Vault.KeyName != "" {
		extra = append(extra, func(r *encxorm.Registry) error { return hashicorp.Register(r, cfg.Vault) })
	}
	if cfg.AWS.KMSKeyID != "" {
		extra = append(extra, func(r *encxorm.Registry) error { return awsprovider.Register(r, cfg.AWS) })
	}
	registry, err := encxorm.BuildRegistry(cfg, keys, extra...)
	if err != nil {
		return nil, err
	}

	env := &Env{Config: cfg, Logger: logger, Registry: registry, Keys: keys}
	if !withStore {
		return env, nil
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("%w: database.dsn is required", encxorm.ErrInvalidConfiguration)
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("%w: no tables declared", encxorm.ErrInvalidConfiguration)
	}
	db, err := sqlx.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Database.Driver, err)
	}

	store, err := sqlstore.New(db, sqlstore.TablesFromConfig(cfg.Tables), sqlstore.WithLogger(logger))
	if err != nil {
		db.Close()
		return nil, err
	}
	env.Source = store
	env.Resolver = store.Resolver()
	env.Ping = store.Ping
	env.closers = append(env.closers, db.Close)

	logger.Debug("environment ready",
		"driver", cfg.Database.Driver,
		"tables", len(cfg.Tables),
		"encryptors", registry.Names())
	return env, nil
}

func newLogger(cfg encxorm.LogConfig, out io.Writer) (*slog.Logger, error) {
	level, err := monitoring.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", encxorm.ErrInvalidConfiguration, err)
	}
	format, err := monitoring.ParseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", encxorm.ErrInvalidConfiguration, err)
	}
	return monitoring.NewStructuredLogger(monitoring.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    out,
		Component: "cli",
	}), nil
}

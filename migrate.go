package encxorm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EntityType is one persisted type known to a Source. Prototype is a value
// the Resolver accepts, such as &User{} or an empty Record.
type EntityType struct {
	Name      string
	Prototype any
	Abstract  bool
}

// EntityTypeLister lists the persisted types of a store.
type EntityTypeLister interface {
	EntityTypes(ctx context.Context) ([]EntityType, error)
}

// Source is the storage side of a bulk migration.
type Source interface {
	EntityTypeLister
	Count(ctx context.Context, t EntityType) (int, error)
	// Stream returns a forward-only cursor over every object of t. The
	// cursor must keep working after Commit and Detach.
	Stream(ctx context.Context, t EntityType) (Cursor, error)
	// Commit durably writes every object changed since the last Commit.
	Commit(ctx context.Context) error
	// Detach releases objects already committed.
	Detach(ctx context.Context) error
}

// Cursor iterates over stored objects.
type Cursor interface {
	Next(ctx context.Context) bool
	Object() any
	Err() error
	Close() error
}

// Progress receives migration progress. Implementations render it.
type Progress interface {
	Start(entityType string, total int)
	Advance(n int)
	Finish(entityType string)
}

type noopProgress struct{}

func (noopProgress) Start(string, int) {}
func (noopProgress) Advance(int)       {}
func (noopProgress) Finish(string)     {}

// TypeResult reports the migration of one entity type.
type TypeResult struct {
	Type      string
	Total     int
	Processed int
	Encrypted int64
}

// MigrationResult summarizes a migration run. On failure it holds what was
// done before the error; only Commits batches are durable.
type MigrationResult struct {
	RunID     string
	Encryptor string
	Types     []TypeResult
	Commits   int
	Encrypted int64
	Duration  time.Duration
}

type migrateConfig struct {
	encryptor string
	batchSize int
	progress  Progress
}

// MigrateOption configures one Migrate call.
type MigrateOption func(c *migrateConfig)

// WithMigrationEncryptor selects a registered encryptor by name for this run.
func WithMigrationEncryptor(name string) MigrateOption {
	return func(c *migrateConfig) {
		c.encryptor = name
	}
}

// WithBatchSize sets how many objects are processed between commits.
func WithBatchSize(n int) MigrateOption {
	return func(c *migrateConfig) {
		c.batchSize = n
	}
}

func WithProgress(p Progress) MigrateOption {
	return func(c *migrateConfig) {
		if p != nil {
			c.progress = p
		}
	}
}

// Migrator encrypts every stored value that is still plaintext.
type Migrator struct {
	source   Source
	settings *settings
}

func NewMigrator(source Source, opts ...Option) (*Migrator, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: migration source cannot be nil", ErrInvalidConfiguration)
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Migrator{source: source, settings: s}, nil
}

// Migrate streams every eligible entity type through an encrypting
// processor, committing and detaching every batch. Configuration problems
// (unknown encryptor, bad field metadata) are reported before any object is
// read. Later failures are returned as *MigrationError.
func (m *Migrator) Migrate(ctx context.Context, opts ...MigrateOption) (*MigrationResult, error) {
	cfg := migrateConfig{batchSize: DefaultBatchSize, progress: noopProgress{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfiguration, cfg.batchSize)
	}

	enc := m.settings.encryptor
	if cfg.encryptor != "" {
		if m.settings.registry == nil {
			return nil, fmt.Errorf("%w: encryptor '%s' requested but no registry configured", ErrInvalidConfiguration, cfg.encryptor)
		}
		selected, err := m.settings.registry.New(ctx, cfg.encryptor)
		if err != nil {
			return nil, err
		}
		enc = selected
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: no encryptor configured", ErrInvalidConfiguration)
	}

	types, err := m.eligibleTypes(ctx)
	if err != nil {
		return nil, err
	}

	processor := newProcessor(&settings{
		encryptor: enc,
		resolver:  m.settings.resolver,
		hook:      m.settings.hook,
	}, nil)

	result := &MigrationResult{RunID: uuid.NewString(), Encryptor: cfg.encryptor}
	logger := m.settings.logger.With("run_id", result.RunID)
	logger.InfoContext(ctx, "migration started", "types", len(types), "batch_size", cfg.batchSize, "encryptor", cfg.encryptor)

	start := time.Now()
	for _, t := range types {
		if err := m.migrateType(ctx, t, processor, cfg, result, logger); err != nil {
			result.Encrypted = processor.counters.Encrypted()
			result.Duration = time.Since(start)
			logger.ErrorContext(ctx, "migration aborted", "entity_type", t.Name, "commits", result.Commits, "error", err)
			return result, &MigrationError{Type: t.Name, Result: result, Err: err}
		}
	}

	result.Encrypted = processor.counters.Encrypted()
	result.Duration = time.Since(start)
	logger.InfoContext(ctx, "migration finished", "commits", result.Commits, "encrypted", result.Encrypted, "duration", result.Duration)
	return result, nil
}

// eligibleTypes keeps concrete types with at least one encrypted field.
func (m *Migrator) eligibleTypes(ctx context.Context) ([]EntityType, error) {
	all, err := m.source.EntityTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}

	var eligible []EntityType
	for _, t := range all {
		if t.Abstract {
			continue
		}
		desc, err := m.settings.resolver.Resolve(t.Prototype)
		if err != nil {
			return nil, err
		}
		if desc.Eligible() {
			eligible = append(eligible, t)
		}
	}
	return eligible, nil
}

func (m *Migrator) migrateType(ctx context.Context, t EntityType, processor *Processor, cfg migrateConfig, result *MigrationResult, logger *slog.Logger) (err error) {
	total, err := m.source.Count(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", t.Name, err)
	}

	result.Types = append(result.Types, TypeResult{Type: t.Name, Total: total})
	tr := &result.Types[len(result.Types)-1]
	encryptedBefore := processor.counters.Encrypted()

	cfg.progress.Start(t.Name, total)
	cursor, err := m.source.Stream(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to stream %s: %w", t.Name, err)
	}
	defer func() {
		if cerr := cursor.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s cursor: %w", t.Name, cerr)
		}
	}()

	commit := func(rows int) error {
		if err := m.source.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
		if err := m.source.Detach(ctx); err != nil {
			return fmt.Errorf("failed to detach batch: %w", err)
		}
		result.Commits++
		tr.Encrypted = processor.counters.Encrypted() - encryptedBefore
		cfg.progress.Advance(rows)
		m.settings.hook.OnBatchCommit(ctx, t.Name, result.Commits, rows, map[string]any{"run_id": result.RunID})
		logger.DebugContext(ctx, "batch committed", "entity_type", t.Name, "rows", rows, "processed", tr.Processed)
		return nil
	}

	pending := 0
	for cursor.Next(ctx) {
		if err := processor.Process(ctx, cursor.Object(), Encrypt); err != nil {
			return err
		}
		tr.Processed++
		pending++
		if pending == cfg.batchSize {
			if err := commit(pending); err != nil {
				return err
			}
			pending = 0
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", t.Name, err)
	}
	if pending > 0 {
		if err := commit(pending); err != nil {
			return err
		}
	}

	tr.Encrypted = processor.counters.Encrypted() - encryptedBefore
	cfg.progress.Finish(t.Name)
	logger.InfoContext(ctx, "entity type migrated", "entity_type", t.Name, "processed", tr.Processed, "encrypted", tr.Encrypted)
	return nil
}

// Package sqlstore implements encxorm.Source over plain SQL tables, so that
// the bulk migration can run against a database without the host ORM.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/hengadev/encxorm"
	"github.com/hengadev/encxorm/internal/monitoring"
	"github.com/jmoiron/sqlx"
)

// DefaultPageSize is the number of rows fetched per keyset page.
const DefaultPageSize = 500

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table declares a table holding encrypted columns. Key must be unique and
// orderable; it drives keyset pagination.
type Table struct {
	Name      string
	Key       string
	Columns   []string
	Encrypted []string
}

func (t Table) validate() error {
	if !identifier.MatchString(t.Name) {
		return fmt.Errorf("%w: invalid table name %q", encxorm.ErrInvalidConfiguration, t.Name)
	}
	if len(t.Encrypted) == 0 {
		return fmt.Errorf("%w: table %s has no encrypted columns", encxorm.ErrInvalidConfiguration, t.Name)
	}
	for _, col := range t.columns() {
		if !identifier.MatchString(col) {
			return fmt.Errorf("%w: invalid column name %q on table %s", encxorm.ErrInvalidConfiguration, col, t.Name)
		}
	}
	return nil
}

// columns returns the key, the plain columns then the encrypted columns.
func (t Table) columns() []string {
	cols := append([]string{t.Key}, t.Columns...)
	return append(cols, t.Encrypted...)
}

// TablesFromConfig converts configured tables.
func TablesFromConfig(cfg []encxorm.TableConfig) []Table {
	tables := make([]Table, 0, len(cfg))
	for _, t := range cfg {
		key := t.Key
		if key == "" {
			key = "id"
		}
		tables = append(tables, Table{Name: t.Name, Key: key, Columns: t.Columns, Encrypted: t.Encrypted})
	}
	return tables
}

// Store reads rows page by page and writes back, in one transaction per
// Commit, the rows whose encrypted columns changed since they were read.
type Store struct {
	db       *sqlx.DB
	tables   []*Table
	resolver *encxorm.SchemaResolver
	pageSize int
	logger   *slog.Logger

	mu      sync.Mutex
	tracked []*Row
	updated int
}

type Option func(*Store)

func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(db *sqlx.DB, tables []Table, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database cannot be nil", encxorm.ErrInvalidConfiguration)
	}

	s := &Store{
		db:       db,
		resolver: encxorm.NewSchemaResolver(nil),
		pageSize: DefaultPageSize,
		logger:   monitoring.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := range tables {
		t := tables[i]
		if err := t.validate(); err != nil {
			return nil, err
		}
		if err := s.resolver.Declare(t.Name, append([]string{t.Key}, t.Columns...), t.Encrypted); err != nil {
			return nil, err
		}
		s.tables = append(s.tables, &t)
	}
	return s, nil
}

// Resolver describes the rows of every declared table.
func (s *Store) Resolver() encxorm.Resolver {
	return s.resolver
}

// Updated returns the number of rows written by Commit so far.
func (s *Store) Updated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

func (s *Store) EntityTypes(ctx context.Context) ([]encxorm.EntityType, error) {
	types := make([]encxorm.EntityType, 0, len(s.tables))
	for _, t := range s.tables {
		types = append(types, encxorm.EntityType{Name: t.Name, Prototype: newRow(t)})
	}
	return types, nil
}

func (s *Store) table(name string) (*Table, error) {
	for _, t := range s.tables {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: table %s is not declared", encxorm.ErrInvalidConfiguration, name)
}

func (s *Store) Count(ctx context.Context, et encxorm.EntityType) (int, error) {
	t, err := s.table(et.Name)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.Name)); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.Name, err)
	}
	return n, nil
}

func (s *Store) Stream(ctx context.Context, et encxorm.EntityType) (encxorm.Cursor, error) {
	t, err := s.table(et.Name)
	if err != nil {
		return nil, err
	}
	return &cursor{store: s, table: t}, nil
}

// Commit writes every tracked row with changed encrypted columns in a single
// transaction.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dirty []*Row
	for _, row := range s.tracked {
		if len(row.changed()) > 0 {
			dirty = append(dirty, row)
		}
	}
	if len(dirty) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range dirty {
		cols := row.changed()
		sets := make([]string, len(cols))
		args := make([]any, 0, len(cols)+1)
		for i, col := range cols {
			sets[i] = col + " = ?"
			args = append(args, row.values[col])
		}
		args = append(args, row.key)

		query := tx.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", row.table.Name, strings.Join(sets, ", "), row.table.Key))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update %s %v: %w", row.table.Name, row.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for _, row := range dirty {
		row.settle()
	}
	s.updated += len(dirty)
	s.logger.DebugContext(ctx, "rows written", "rows", len(dirty))
	return nil
}

// Ping checks the connection and that every declared column can be
// selected.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	for _, t := range s.tables {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", strings.Join(t.columns(), ", "), t.Name)
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("table %s does not match its declaration: %w", t.Name, err)
		}
		rows.Close()
	}
	return nil
}

// Detach forgets every tracked row. Uncommitted changes are dropped.
func (s *Store) Detach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = nil
	return nil
}

func (s *Store) track(row *Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, row)
}

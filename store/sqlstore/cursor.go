package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// cursor walks a table by keyset pagination: each page starts after the
// last key seen, so rows rewritten by Commit are never read twice and the
// cursor keeps working after Detach.
type cursor struct {
	store   *Store
	table   *Table
	page    []*Row
	pos     int
	lastKey any
	started bool
	done    bool
	current *Row
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.page) {
		if c.done {
			return false
		}
		if err := c.fetch(ctx); err != nil {
			c.err = err
			return false
		}
		if len(c.page) == 0 {
			return false
		}
	}

	c.current = c.page[c.pos]
	c.pos++
	c.store.track(c.current)
	return true
}

func (c *cursor) fetch(ctx context.Context) error {
	t := c.table
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columns(), ", "), t.Name)
	var args []any
	if c.started {
		query += fmt.Sprintf(" WHERE %s > ?", t.Key)
		args = append(args, c.lastKey)
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", t.Key, c.store.pageSize)

	rows, err := c.store.db.QueryxContext(ctx, c.store.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()

	cols := t.columns()
	c.page = c.page[:0]
	c.pos = 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", t.Name, err)
		}
		row := newRow(t)
		row.key = values[0]
		for i, col := range cols {
			v := toNullString(values[i])
			row.values[col] = v
			row.original[col] = v
		}
		c.page = append(c.page, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", t.Name, err)
	}

	c.started = true
	if len(c.page) < c.store.pageSize {
		c.done = true
	}
	if len(c.page) > 0 {
		c.lastKey = c.page[len(c.page)-1].key
	}
	return nil
}

func (c *cursor) Object() any {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.page = nil
	return nil
}

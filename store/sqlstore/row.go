package sqlstore

import (
	"database/sql"
	"fmt"
)

// Row is one table row read by a Store. It implements encxorm.Record over
// the key, the plain columns and the encrypted columns of its table.
type Row struct {
	table    *Table
	key      any
	values   map[string]sql.NullString
	original map[string]sql.NullString
}

// Key returns the row's key as scanned from the driver.
func (r *Row) Key() any {
	return r.key
}

func (r *Row) RecordType() string {
	return r.table.Name
}

func (r *Row) Field(name string) (string, bool) {
	v := r.values[name]
	return v.String, v.Valid
}

func (r *Row) SetField(name, value string) {
	r.values[name] = sql.NullString{String: value, Valid: true}
}

func newRow(t *Table) *Row {
	return &Row{
		table:    t,
		values:   make(map[string]sql.NullString),
		original: make(map[string]sql.NullString),
	}
}

// changed lists the encrypted columns whose value differs from what was read.
func (r *Row) changed() []string {
	var cols []string
	for _, col := range r.table.Encrypted {
		if r.values[col] != r.original[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// settle makes the current values the new baseline after a commit.
func (r *Row) settle() {
	for _, col := range r.table.Encrypted {
		r.original[col] = r.values[col]
	}
}

// toNullString converts a value returned by SliceScan.
func toNullString(v any) sql.NullString {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: v, Valid: true}
	case []byte:
		return sql.NullString{String: string(v), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
}

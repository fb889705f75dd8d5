package encxorm

import (
	"context"
	"database/sql"
	"errors"
)

type Address struct {
	Street string `encx:"encrypt"`
	City   string
}

type Person struct {
	ID      int
	Name    string
	SSN     string         `encx:"encrypt"`
	Notes   *string        `encx:"encrypt"`
	Phone   sql.NullString `encx:"encrypt"`
	Home    Address        `encx:"embedded"`
	Billing *Address       `encx:"embedded"`
	Ignored string         `encx:"-"`
}

type Base struct {
	ID     int
	Secret string `encx:"encrypt"`
	Label  string `encx:"encrypt"`
}

// Employee shadows Base.Label with a plain field.
type Employee struct {
	Base
	Label string
	Badge string `encx:"encrypt"`
}

type Contractor struct {
	*Base
	Company string `encx:"encrypt"`
}

type lazyProxy struct {
	target any
}

func (p *lazyProxy) Unwrap() any { return p.target }

func strPtr(s string) *string { return &s }

// failingEncryptor fails every call after the first n successful ones.
type failingEncryptor struct {
	inner Encryptor
	n     int
	calls int
}

var errEncryptorDown = errors.New("encryptor down")

func (e *failingEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	e.calls++
	if e.calls > e.n {
		return "", errEncryptorDown
	}
	return e.inner.Encrypt(ctx, plaintext)
}

func (e *failingEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	e.calls++
	if e.calls > e.n {
		return "", errEncryptorDown
	}
	return e.inner.Decrypt(ctx, ciphertext)
}

// testRecord is a minimal Record.
type testRecord struct {
	typ    string
	values map[string]*string
}

func newTestRecord(typ string, values map[string]*string) *testRecord {
	return &testRecord{typ: typ, values: values}
}

func (r *testRecord) RecordType() string { return r.typ }

func (r *testRecord) Field(name string) (string, bool) {
	v, ok := r.values[name]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

func (r *testRecord) SetField(name, value string) {
	r.values[name] = &value
}

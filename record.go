package encxorm

import (
	"fmt"
	"sync"
)

// Record is an object whose fields are addressed by name rather than by
// struct layout, such as a row read by a generic SQL source. An empty
// value with ok == false means null.
type Record interface {
	RecordType() string
	Field(name string) (value string, ok bool)
	SetField(name, value string)
}

// SchemaResolver resolves Records from declared field lists. Objects that are
// not Records are passed to the fallback resolver when one is set.
type SchemaResolver struct {
	mu       sync.RWMutex
	types    map[string]*TypeDescriptor
	fallback Resolver
}

// NewSchemaResolver creates a resolver with no declared types. fallback may
// be nil.
func NewSchemaResolver(fallback Resolver) *SchemaResolver {
	return &SchemaResolver{
		types:    make(map[string]*TypeDescriptor),
		fallback: fallback,
	}
}

// Declare registers the plain and encrypted fields of a record type,
// replacing any previous declaration.
func (r *SchemaResolver) Declare(recordType string, plain, encrypted []string) error {
	if recordType == "" {
		return fmt.Errorf("%w: record type cannot be empty", ErrInvalidConfiguration)
	}

	desc := &TypeDescriptor{Name: recordType}
	seen := make(map[string]bool)
	add := func(name string, kind FieldKind) error {
		if name == "" {
			return &ResolverError{Type: recordType, Err: fmt.Errorf("empty field name")}
		}
		if seen[name] {
			return &ResolverError{Type: recordType, Err: fmt.Errorf("field '%s' declared twice", name)}
		}
		seen[name] = true
		desc.Fields = append(desc.Fields, FieldDescriptor{Name: name, Kind: kind})
		return nil
	}
	for _, name := range plain {
		if err := add(name, FieldPlain); err != nil {
			return err
		}
	}
	for _, name := range encrypted {
		if err := add(name, FieldEncrypted); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.types[recordType] = desc
	r.mu.Unlock()
	return nil
}

func (r *SchemaResolver) Resolve(obj any) (*TypeDescriptor, error) {
	obj = Unwrap(obj)
	rec, ok := obj.(Record)
	if !ok {
		if r.fallback != nil {
			return r.fallback.Resolve(obj)
		}
		return nil, NewInvalidObjectError(obj, "is not a record")
	}

	r.mu.RLock()
	desc, ok := r.types[rec.RecordType()]
	r.mu.RUnlock()
	if !ok {
		return nil, &ResolverError{Type: rec.RecordType(), Err: fmt.Errorf("record type not declared")}
	}
	return desc, nil
}

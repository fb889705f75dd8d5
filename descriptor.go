package encxorm

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/hengadev/errsx"
)

// FieldKind tells the processor what to do with a field.
type FieldKind int

const (
	FieldPlain FieldKind = iota
	FieldEncrypted
	FieldEmbedded
)

func (k FieldKind) String() string {
	switch k {
	case FieldPlain:
		return "plain"
	case FieldEncrypted:
		return "encrypted"
	case FieldEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// valueKind is the Go representation of an encrypted or embedded field.
type valueKind int

const (
	valueNone valueKind = iota
	valueString
	valueStringPtr
	valueNullString
	valueStruct
	valueStructPtr
)

// FieldDescriptor describes one field of a resolved type. Descriptors are
// immutable once returned by a Resolver.
type FieldDescriptor struct {
	Name string
	Kind FieldKind

	index []int
	value valueKind
	elem  reflect.Type // struct type of an embedded field
}

// TypeDescriptor is the ordered field list of one runtime type. Inherited
// fields come first.
type TypeDescriptor struct {
	Name   string
	Fields []FieldDescriptor

	// embedded counts encrypted fields reachable through embedded structs.
	embedded int
}

// EncryptedFields returns the number of fields of kind FieldEncrypted
// declared on the type itself.
func (d *TypeDescriptor) EncryptedFields() int {
	n := 0
	for _, f := range d.Fields {
		if f.Kind == FieldEncrypted {
			n++
		}
	}
	return n
}

// AllEncryptedFields is EncryptedFields plus the encrypted fields of
// embedded structs, at any depth.
func (d *TypeDescriptor) AllEncryptedFields() int {
	return d.EncryptedFields() + d.embedded
}

// Eligible reports whether the type has anything to encrypt, directly or in
// an embedded struct.
func (d *TypeDescriptor) Eligible() bool {
	return d.AllEncryptedFields() > 0
}

// Field looks a descriptor up by name.
func (d *TypeDescriptor) Field(name string) (FieldDescriptor, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Resolver returns the field descriptors for the runtime type of obj.
// Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(obj any) (*TypeDescriptor, error)
}

// Proxy is implemented by lazy-loading wrappers. The processor resolves and
// mutates the object returned by Unwrap.
type Proxy interface {
	Unwrap() any
}

// Unwrap follows Proxy wrappers down to the real object.
func Unwrap(obj any) any {
	for {
		p, ok := obj.(Proxy)
		if !ok {
			return obj
		}
		inner := p.Unwrap()
		if inner == nil {
			return obj
		}
		obj = inner
	}
}

var nullStringType = reflect.TypeOf(sql.NullString{})

// TagResolver builds descriptors from `encx` struct tags:
//
//	SSN     string         `encx:"encrypt"`
//	Notes   *string        `encx:"encrypt"`
//	Address Address        `encx:"embedded"`
//	Secret  string         `encx:"-"`
//
// Untagged anonymous struct fields are treated as a parent type and their
// fields are flattened into the result.
type TagResolver struct {
	cache sync.Map // reflect.Type -> *TypeDescriptor
}

func NewTagResolver() *TagResolver {
	return &TagResolver{}
}

func (r *TagResolver) Resolve(obj any) (*TypeDescriptor, error) {
	obj = Unwrap(obj)
	if obj == nil {
		return nil, NewInvalidObjectError(obj, "is nil")
	}
	if _, ok := obj.(Record); ok {
		return nil, NewInvalidObjectError(obj, "is a record; use a SchemaResolver")
	}

	t := reflect.TypeOf(obj)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, NewInvalidObjectError(obj, "must be a pointer to a struct")
	}
	return r.ResolveType(t.Elem())
}

// ResolveType resolves a struct type directly, for callers that only hold a
// prototype type.
func (r *TagResolver) ResolveType(t reflect.Type) (*TypeDescriptor, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidObject, t)
	}

	if cached, ok := r.cache.Load(t); ok {
		return cached.(*TypeDescriptor), nil
	}

	errs := make(errsx.Map)
	fields := collectFields(t, nil, &errs, map[reflect.Type]bool{})
	if !errs.IsEmpty() {
		return nil, &ResolverError{Type: t.String(), Err: errs.AsError()}
	}

	embedded, err := embeddedEncrypted(fields, map[reflect.Type]bool{t: true})
	if err != nil {
		return nil, err
	}

	desc := &TypeDescriptor{Name: t.String(), Fields: fields, embedded: embedded}
	actual, _ := r.cache.LoadOrStore(t, desc)
	return actual.(*TypeDescriptor), nil
}

func collectFields(t reflect.Type, prefix []int, errs *errsx.Map, visiting map[reflect.Type]bool) []FieldDescriptor {
	visiting[t] = true
	defer delete(visiting, t)

	var inherited, own []FieldDescriptor
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		tag, tagged := f.Tag.Lookup(StructTag)
		tag = strings.TrimSpace(tag)

		if f.Anonymous && !tagged {
			parent := f.Type
			if parent.Kind() == reflect.Ptr {
				parent = parent.Elem()
			}
			if parent.Kind() == reflect.Struct {
				if visiting[parent] {
					errs.Set(f.Name, fmt.Errorf("recursive embedding of %s", parent))
					continue
				}
				inherited = mergeFields(inherited, collectFields(parent, index, errs, visiting))
				continue
			}
		}

		if !f.IsExported() {
			if tag == TagEncrypt || tag == TagEmbedded {
				errs.Set(f.Name, fmt.Errorf("unexported field cannot be tagged %q", tag))
			}
			continue
		}

		desc := FieldDescriptor{Name: f.Name, Kind: FieldPlain, index: index}
		switch tag {
		case "", TagPlain:
		case TagEncrypt:
			vk, err := encryptedValueKind(f.Type)
			if err != nil {
				errs.Set(f.Name, err)
				continue
			}
			desc.Kind, desc.value = FieldEncrypted, vk
		case TagEmbedded:
			vk, err := embeddedValueKind(f.Type)
			if err != nil {
				errs.Set(f.Name, err)
				continue
			}
			desc.Kind, desc.value, desc.elem = FieldEmbedded, vk, f.Type
			if vk == valueStructPtr {
				desc.elem = f.Type.Elem()
			}
		default:
			errs.Set(f.Name, fmt.Errorf("unknown %s tag value %q", StructTag, tag))
			continue
		}
		own = append(own, desc)
	}

	return mergeFields(inherited, own)
}

// embeddedEncrypted counts the encrypted fields reachable through the
// embedded fields of a type. A type already on the path is skipped, so a
// self-referencing pointer counts once.
func embeddedEncrypted(fields []FieldDescriptor, path map[reflect.Type]bool) (int, error) {
	n := 0
	for _, f := range fields {
		if f.Kind != FieldEmbedded || f.elem == nil || path[f.elem] {
			continue
		}

		errs := make(errsx.Map)
		nested := collectFields(f.elem, nil, &errs, map[reflect.Type]bool{})
		if !errs.IsEmpty() {
			return 0, &ResolverError{Type: f.elem.String(), Err: errs.AsError()}
		}
		nd := TypeDescriptor{Fields: nested}
		n += nd.EncryptedFields()

		path[f.elem] = true
		deeper, err := embeddedEncrypted(nested, path)
		delete(path, f.elem)
		if err != nil {
			return 0, err
		}
		n += deeper
	}
	return n, nil
}

// mergeFields appends child to parent. A child field with the same name as a
// parent field replaces it in place.
func mergeFields(parent, child []FieldDescriptor) []FieldDescriptor {
	for _, c := range child {
		replaced := false
		for i := range parent {
			if parent[i].Name == c.Name {
				parent[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			parent = append(parent, c)
		}
	}
	return parent
}

func encryptedValueKind(t reflect.Type) (valueKind, error) {
	switch {
	case t == nullStringType:
		return valueNullString, nil
	case t.Kind() == reflect.String:
		return valueString, nil
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.String:
		return valueStringPtr, nil
	}
	return valueNone, fmt.Errorf("unsupported type %s for %s:%q, want string, *string or sql.NullString", t, StructTag, TagEncrypt)
}

func embeddedValueKind(t reflect.Type) (valueKind, error) {
	switch {
	case t.Kind() == reflect.Struct:
		return valueStruct, nil
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct:
		return valueStructPtr, nil
	}
	return valueNone, fmt.Errorf("unsupported type %s for %s:%q, want a struct or pointer to struct", t, StructTag, TagEmbedded)
}

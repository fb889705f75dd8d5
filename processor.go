package encxorm

import (
	"context"
	"reflect"
	"time"

	"github.com/hengadev/encxorm/internal/monitoring"
)

// Direction selects what Process does with encrypted fields.
type Direction int

const (
	Encrypt Direction = iota
	Decrypt
)

func (d Direction) String() string {
	if d == Decrypt {
		return monitoring.OperationDecrypt
	}
	return monitoring.OperationEncrypt
}

// Processor encrypts or decrypts the tagged fields of one object at a time,
// recursing into embedded objects.
//
// For each encrypted field with a non-empty value:
//   - Decrypt: marked values are decrypted and the marker dropped. When a
//     cache is attached the original ciphertext is remembered.
//   - Encrypt: a value found in the cache gets its original ciphertext back.
//     Otherwise unmarked values are encrypted and marked; marked values are
//     left alone.
//
// A Processor is not safe for concurrent use.
type Processor struct {
	encryptor Encryptor
	resolver  Resolver
	cache     *DecryptionCache
	counters  *Counters
	hook      ObservabilityHook
}

// NewProcessor creates a processor without a decryption cache.
func NewProcessor(opts ...Option) (*Processor, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return newProcessor(s, nil), nil
}

func newProcessor(s *settings, cache *DecryptionCache) *Processor {
	return &Processor{
		encryptor: s.encryptor,
		resolver:  s.resolver,
		cache:     cache,
		counters:  &Counters{},
		hook:      s.hook,
	}
}

// Counters returns the processor's operation counters.
func (p *Processor) Counters() *Counters {
	return p.counters
}

// Process applies dir to every encrypted field of obj. obj must be a non-nil
// pointer to a struct or a Record. Fields changed before a failure keep their
// new value.
func (p *Processor) Process(ctx context.Context, obj any, dir Direction) error {
	if p.encryptor == nil {
		return nil
	}

	obj = Unwrap(obj)
	if obj == nil {
		return NewInvalidObjectError(obj, "is nil")
	}
	if v := reflect.ValueOf(obj); v.Kind() == reflect.Ptr && v.IsNil() {
		return NewInvalidObjectError(obj, "is a nil pointer")
	}

	desc, err := p.resolver.Resolve(obj)
	if err != nil {
		return err
	}

	metadata := map[string]any{"type": desc.Name}
	start := time.Now()
	p.hook.OnProcessStart(ctx, dir.String(), metadata)
	err = p.process(ctx, obj, obj, desc, dir)
	p.hook.OnProcessComplete(ctx, dir.String(), time.Since(start), err, metadata)
	return err
}

// process walks obj. root is the object passed to Process; entries cached
// for embedded objects are attributed to it as well.
func (p *Processor) process(ctx context.Context, root, obj any, desc *TypeDescriptor, dir Direction) error {
	acc, err := accessorFor(obj)
	if err != nil {
		return err
	}

	for _, fd := range desc.Fields {
		switch fd.Kind {
		case FieldEmbedded:
			nested, ok := acc.nested(fd)
			if !ok {
				continue
			}
			nestedDesc, err := p.resolver.Resolve(nested)
			if err != nil {
				return err
			}
			if err := p.process(ctx, root, nested, nestedDesc, dir); err != nil {
				return err
			}
		case FieldEncrypted:
			if err := p.processField(ctx, root, obj, acc, desc.Name, fd, dir); err != nil {
				p.hook.OnError(ctx, dir.String(), err, map[string]any{"type": desc.Name, "field": fd.Name})
				return err
			}
		}
	}
	return nil
}

func (p *Processor) processField(ctx context.Context, root, obj any, acc fieldAccessor, typeName string, fd FieldDescriptor, dir Direction) error {
	value, ok := acc.get(fd)
	if !ok || value == "" {
		return nil
	}

	switch dir {
	case Decrypt:
		if !IsMarked(value) {
			return nil
		}
		p.counters.decrypted.Add(1)
		plain, err := p.encryptor.Decrypt(ctx, Strip(value))
		if err != nil {
			return &CryptoError{Direction: dir, Type: typeName, Field: fd.Name, Err: err}
		}
		acc.set(fd, plain)
		if p.cache != nil {
			p.cache.Record(typeName, obj, fd.Name, plain, value)
			if root != obj {
				p.cache.Attribute(root)
			}
		}

	case Encrypt:
		if p.cache != nil {
			if marked, hit := p.cache.Lookup(typeName, obj, fd.Name, value); hit {
				acc.set(fd, marked)
				return nil
			}
		}
		if IsMarked(value) {
			return nil
		}
		p.counters.encrypted.Add(1)
		ciphertext, err := p.encryptor.Encrypt(ctx, value)
		if err != nil {
			return &CryptoError{Direction: dir, Type: typeName, Field: fd.Name, Err: err}
		}
		acc.set(fd, Apply(ciphertext))
	}
	return nil
}

// fieldAccessor reads and writes field values on either a struct or a
// Record. get reports ok == false for null values.
type fieldAccessor interface {
	get(fd FieldDescriptor) (value string, ok bool)
	set(fd FieldDescriptor, value string)
	nested(fd FieldDescriptor) (any, bool)
}

func accessorFor(obj any) (fieldAccessor, error) {
	if rec, ok := obj.(Record); ok {
		return recordAccessor{rec: rec}, nil
	}
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, NewInvalidObjectError(obj, "must be a pointer to a struct")
	}
	return structAccessor{v: v.Elem()}, nil
}

type recordAccessor struct {
	rec Record
}

func (a recordAccessor) get(fd FieldDescriptor) (string, bool) {
	return a.rec.Field(fd.Name)
}

func (a recordAccessor) set(fd FieldDescriptor, value string) {
	a.rec.SetField(fd.Name, value)
}

func (a recordAccessor) nested(fd FieldDescriptor) (any, bool) {
	return nil, false
}

type structAccessor struct {
	v reflect.Value
}

// field follows the index path. It fails when the path crosses a nil
// embedded pointer.
func (a structAccessor) field(fd FieldDescriptor) (reflect.Value, bool) {
	f, err := a.v.FieldByIndexErr(fd.index)
	if err != nil {
		return reflect.Value{}, false
	}
	return f, true
}

func (a structAccessor) get(fd FieldDescriptor) (string, bool) {
	f, ok := a.field(fd)
	if !ok {
		return "", false
	}
	switch fd.value {
	case valueString:
		return f.String(), true
	case valueStringPtr:
		if f.IsNil() {
			return "", false
		}
		return f.Elem().String(), true
	case valueNullString:
		if !f.FieldByName("Valid").Bool() {
			return "", false
		}
		return f.FieldByName("String").String(), true
	}
	return "", false
}

func (a structAccessor) set(fd FieldDescriptor, value string) {
	f, ok := a.field(fd)
	if !ok {
		return
	}
	switch fd.value {
	case valueString:
		f.SetString(value)
	case valueStringPtr:
		ptr := reflect.New(f.Type().Elem())
		ptr.Elem().SetString(value)
		f.Set(ptr)
	case valueNullString:
		f.FieldByName("String").SetString(value)
		f.FieldByName("Valid").SetBool(true)
	}
}

func (a structAccessor) nested(fd FieldDescriptor) (any, bool) {
	f, ok := a.field(fd)
	if !ok {
		return nil, false
	}
	switch fd.value {
	case valueStruct:
		return f.Addr().Interface(), true
	case valueStructPtr:
		if f.IsNil() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

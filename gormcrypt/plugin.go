// Package gormcrypt drives an encxorm.Coordinator from gorm callbacks, so
// that models with encx tags are encrypted on write and decrypted on read.
//
//	db.Use(gormcrypt.New(encxorm.WithEncryptor(enc)))
//
//	ctx := gormcrypt.WithSession(ctx, coord)
//	db.WithContext(ctx).First(&user, id)
//	db.WithContext(ctx).Save(&user)
//
// Only struct values are processed: updates given as maps or column lists
// are written as is.
package gormcrypt

import (
	"fmt"
	"reflect"

	"github.com/hengadev/encxorm"
	"gorm.io/gorm"
)

const (
	pluginName     = "encxorm"
	coordinatorKey = "encxorm:coordinator"
	unitKey        = "encxorm:unit"
)

// Plugin implements gorm.Plugin.
type Plugin struct {
	opts []encxorm.Option
}

// New returns a plugin. opts configure the transient coordinators used by
// statements that run without a session.
func New(opts ...encxorm.Option) *Plugin {
	return &Plugin{opts: opts}
}

func (p *Plugin) Name() string {
	return pluginName
}

func (p *Plugin) Initialize(db *gorm.DB) error {
	if _, err := encxorm.NewCoordinator(p.opts...); err != nil {
		return err
	}

	cb := db.Callback()
	registrations := []struct {
		name     string
		register func(name string, fn func(*gorm.DB)) error
		fn       func(*gorm.DB)
	}{
		{"encxorm:after_query", cb.Query().After("gorm:query").Register, p.afterQuery},
		{"encxorm:before_create", cb.Create().Before("gorm:create").Register, p.beforeCreate},
		{"encxorm:after_create", cb.Create().After("gorm:create").Register, p.afterWrite},
		{"encxorm:before_update", cb.Update().Before("gorm:update").Register, p.beforeUpdate},
		{"encxorm:after_update", cb.Update().After("gorm:update").Register, p.afterWrite},
	}
	for _, r := range registrations {
		if err := r.register(r.name, r.fn); err != nil {
			return fmt.Errorf("failed to register %s callback: %w", r.name, err)
		}
	}
	return nil
}

func (p *Plugin) afterQuery(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	objs := statementObjects(db)
	if len(objs) == 0 {
		return
	}

	coord, s, err := p.coordinator(db)
	if err != nil {
		db.AddError(err)
		return
	}
	for _, obj := range objs {
		if err := coord.OnLoad(db.Statement.Context, obj); err != nil {
			db.AddError(err)
			return
		}
	}
	if s != nil {
		s.manage(objs)
	}
}

func (p *Plugin) beforeCreate(db *gorm.DB) {
	p.beforeWrite(db, true)
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	p.beforeWrite(db, false)
}

func (p *Plugin) beforeWrite(db *gorm.DB, insert bool) {
	if db.Error != nil {
		return
	}
	objs := statementObjects(db)
	if len(objs) == 0 {
		return
	}

	coord, s, err := p.coordinator(db)
	if err != nil {
		db.AddError(err)
		return
	}
	unit := &statementUnit{objects: objs, insertions: insert}
	if s != nil {
		unit.managed = s.managed
	}
	db.InstanceSet(coordinatorKey, coord)
	db.InstanceSet(unitKey, unit)

	ctx := db.Statement.Context
	if err := coord.OnPreFlush(ctx, unit); err != nil {
		db.AddError(err)
		return
	}
	if insert {
		if err := coord.OnFlush(ctx, unit); err != nil {
			db.AddError(err)
		}
		return
	}
	for _, obj := range objs {
		if _, err := coord.OnPreUpdate(ctx, obj); err != nil {
			db.AddError(err)
			return
		}
	}
}

// afterWrite ends the cycle started by beforeWrite, also when the write
// failed, so that in-memory objects are plaintext again.
func (p *Plugin) afterWrite(db *gorm.DB) {
	v, ok := db.InstanceGet(coordinatorKey)
	if !ok {
		return
	}
	coord := v.(*encxorm.Coordinator)
	u, _ := db.InstanceGet(unitKey)
	unit := u.(*statementUnit)

	ctx := db.Statement.Context
	if coord.Phase() == encxorm.PhaseFlushing && !unit.insertions {
		for _, obj := range unit.objects {
			if err := coord.OnPostUpdate(ctx, obj); err != nil {
				db.AddError(err)
				coord.Reset()
				return
			}
		}
	}
	if coord.Phase() == encxorm.PhaseLoaded {
		return
	}
	if err := coord.OnPostFlush(ctx, unit); err != nil {
		db.AddError(err)
		coord.Reset()
		return
	}
	if s, ok := sessionFrom(ctx); ok && s.coord == coord {
		s.manage(unit.objects)
	}
}

// coordinator returns the session coordinator when the statement runs in an
// idle session. Nested statements, such as association saves, get a
// transient coordinator.
func (p *Plugin) coordinator(db *gorm.DB) (*encxorm.Coordinator, *session, error) {
	if s, ok := sessionFrom(db.Statement.Context); ok && s.coord.Phase() == encxorm.PhaseLoaded {
		return s.coord, s, nil
	}
	coord, err := encxorm.NewCoordinator(p.opts...)
	return coord, nil, err
}

// statementObjects returns pointers to the struct values a statement reads
// into or writes from.
func statementObjects(db *gorm.DB) []any {
	rv := db.Statement.ReflectValue
	if !rv.IsValid() {
		return nil
	}

	var objs []any
	add := func(v reflect.Value) {
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return
			}
			v = v.Elem()
		}
		if v.Kind() == reflect.Struct && v.CanAddr() {
			objs = append(objs, v.Addr().Interface())
		}
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			add(rv.Index(i))
		}
	default:
		add(rv)
	}
	return objs
}

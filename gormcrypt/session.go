package gormcrypt

import (
	"context"

	"github.com/hengadev/encxorm"
)

type sessionKey struct{}

// session is the unit of work shared by every statement run with the same
// context. It remembers each object loaded through it.
type session struct {
	coord   *encxorm.Coordinator
	managed []any
	seen    map[any]struct{}
}

// WithSession binds coord to ctx. Statements run with the returned context
// (db.WithContext(ctx)) share one unit of work: values loaded through it and
// saved unchanged keep their stored ciphertext. A session is not safe for
// concurrent use.
func WithSession(ctx context.Context, coord *encxorm.Coordinator) context.Context {
	return context.WithValue(ctx, sessionKey{}, &session{coord: coord, seen: make(map[any]struct{})})
}

func sessionFrom(ctx context.Context) (*session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionKey{}).(*session)
	return s, ok
}

func (s *session) manage(objs []any) {
	for _, obj := range objs {
		if _, ok := s.seen[obj]; ok {
			continue
		}
		s.seen[obj] = struct{}{}
		s.managed = append(s.managed, obj)
	}
}

// statementUnit is the UnitOfWork of one gorm statement.
type statementUnit struct {
	managed    []any
	objects    []any
	insertions bool
}

func (u *statementUnit) IdentityMap() []any {
	if len(u.managed) == 0 {
		return u.objects
	}
	seen := make(map[any]struct{}, len(u.managed))
	all := append([]any(nil), u.managed...)
	for _, obj := range u.managed {
		seen[obj] = struct{}{}
	}
	for _, obj := range u.objects {
		if _, ok := seen[obj]; !ok {
			all = append(all, obj)
		}
	}
	return all
}

func (u *statementUnit) ScheduledInsertions() []any {
	if !u.insertions {
		return nil
	}
	return u.objects
}

// RecomputeChangeSet is a no-op: gorm reads field values when it builds
// the statement, after the before callbacks ran.
func (u *statementUnit) RecomputeChangeSet(obj any) error {
	return nil
}

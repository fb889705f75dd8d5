package encxorm

// This file provides in-memory helpers for tests and examples.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ReversibleEncryptor is a deterministic, insecure encryptor: the ciphertext
// is the hex of the reversed plaintext. Never use it outside tests.
type ReversibleEncryptor struct{}

func NewReversibleEncryptor() *ReversibleEncryptor {
	return &ReversibleEncryptor{}
}

func (e *ReversibleEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return hex.EncodeToString([]byte(reverse(plaintext))), nil
}

func (e *ReversibleEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("not a reversible ciphertext: %w", err)
	}
	return reverse(string(raw)), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// RandomizedEncryptor prefixes every ciphertext with a random nonce, so
// encrypting the same value twice never yields the same output. It is
// insecure and meant for tests that must notice re-encryption.
type RandomizedEncryptor struct{}

func NewRandomizedEncryptor() *RandomizedEncryptor {
	return &RandomizedEncryptor{}
}

func (e *RandomizedEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return hex.EncodeToString(nonce) + "." + base64.RawURLEncoding.EncodeToString([]byte(plaintext)), nil
}

func (e *RandomizedEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	_, payload, ok := strings.Cut(ciphertext, ".")
	if !ok {
		return "", errors.New("not a randomized ciphertext")
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("not a randomized ciphertext: %w", err)
	}
	return string(raw), nil
}

// MemorySource is an in-memory Source. Objects are mutated in place, so
// Commit only counts calls.
type MemorySource struct {
	mu       sync.Mutex
	types    []EntityType
	objects  map[string][]any
	commits  int
	detaches int

	// OnCommit, when set, is called with the 1-based commit number and may
	// fail it.
	OnCommit func(n int) error
}

func NewMemorySource() *MemorySource {
	return &MemorySource{objects: make(map[string][]any)}
}

// Add registers t on first use and appends objs to it.
func (s *MemorySource) Add(t EntityType, objs ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[t.Name]; !ok {
		s.types = append(s.types, t)
		s.objects[t.Name] = nil
	}
	s.objects[t.Name] = append(s.objects[t.Name], objs...)
}

func (s *MemorySource) EntityTypes(ctx context.Context) ([]EntityType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EntityType(nil), s.types...), nil
}

func (s *MemorySource) Count(ctx context.Context, t EntityType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects[t.Name]), nil
}

func (s *MemorySource) Stream(ctx context.Context, t EntityType) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memoryCursor{objects: append([]any(nil), s.objects[t.Name]...), pos: -1}, nil
}

func (s *MemorySource) Commit(ctx context.Context) error {
	s.mu.Lock()
	s.commits++
	n := s.commits
	s.mu.Unlock()
	if s.OnCommit != nil {
		return s.OnCommit(n)
	}
	return nil
}

func (s *MemorySource) Detach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detaches++
	return nil
}

// Commits returns the number of Commit calls.
func (s *MemorySource) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Detaches returns the number of Detach calls.
func (s *MemorySource) Detaches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detaches
}

type memoryCursor struct {
	objects []any
	pos     int
}

func (c *memoryCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.pos++
	return c.pos < len(c.objects)
}

func (c *memoryCursor) Object() any {
	return c.objects[c.pos]
}

func (c *memoryCursor) Err() error  { return nil }
func (c *memoryCursor) Close() error { return nil }

// MemoryUnitOfWork is a UnitOfWork over fixed object lists.
type MemoryUnitOfWork struct {
	Managed    []any
	Insertions []any
	Recomputed []any
}

func (u *MemoryUnitOfWork) IdentityMap() []any         { return u.Managed }
func (u *MemoryUnitOfWork) ScheduledInsertions() []any { return u.Insertions }

func (u *MemoryUnitOfWork) RecomputeChangeSet(obj any) error {
	u.Recomputed = append(u.Recomputed, obj)
	return nil
}

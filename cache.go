package encxorm

import "reflect"

type cacheKey struct {
	typ   string
	obj   any
	field string
	plain string
}

// DecryptionCache remembers, for values decrypted during the current flush
// cycle, the marked ciphertext they came from. Re-encrypting an unchanged
// value restores that ciphertext instead of producing a new one.
//
// The cache is keyed by object identity and is not safe for concurrent use.
type DecryptionCache struct {
	entries map[cacheKey]string
	objects map[any]int
}

func NewDecryptionCache() *DecryptionCache {
	return &DecryptionCache{
		entries: make(map[cacheKey]string),
		objects: make(map[any]int),
	}
}

// identity returns a comparable identity for obj, or false when obj cannot be
// tracked.
func identity(obj any) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if !reflect.TypeOf(obj).Comparable() {
		return nil, false
	}
	return obj, true
}

// Record stores the ciphertext a plaintext value was decrypted from.
func (c *DecryptionCache) Record(typ string, obj any, field, plain, marked string) {
	id, ok := identity(obj)
	if !ok {
		return
	}
	key := cacheKey{typ: typ, obj: id, field: field, plain: plain}
	if _, exists := c.entries[key]; !exists {
		c.objects[id]++
	}
	c.entries[key] = marked
}

// Lookup returns the recorded ciphertext for an unchanged plaintext.
func (c *DecryptionCache) Lookup(typ string, obj any, field, plain string) (string, bool) {
	id, ok := identity(obj)
	if !ok {
		return "", false
	}
	marked, ok := c.entries[cacheKey{typ: typ, obj: id, field: field, plain: plain}]
	return marked, ok
}

// Attribute marks root as holding cached entries that were recorded for
// one of its embedded objects.
func (c *DecryptionCache) Attribute(root any) {
	if id, ok := identity(root); ok {
		c.objects[id]++
	}
}

// Contains reports whether any entry was recorded for obj or attributed to
// it.
func (c *DecryptionCache) Contains(obj any) bool {
	id, ok := identity(obj)
	if !ok {
		return false
	}
	return c.objects[id] > 0
}

// Len returns the number of entries.
func (c *DecryptionCache) Len() int {
	return len(c.entries)
}

// Clear drops every entry.
func (c *DecryptionCache) Clear() {
	clear(c.entries)
	clear(c.objects)
}

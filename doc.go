// Package encxorm provides transparent field-level encryption for objects
// persisted through an ORM or a plain SQL layer.
//
// Fields tagged for encryption are held as plaintext in memory and written
// to storage as ciphertext followed by a marker suffix. The marker tells an
// encrypted value apart from plaintext living in the same column, so a
// table can be migrated to encryption gradually and every operation is safe
// to repeat.
//
// # Struct Tags
//
//	type User struct {
//	    ID      int
//	    Email   string
//	    SSN     string         `encx:"encrypt"`
//	    Notes   *string        `encx:"encrypt"`
//	    Phone   sql.NullString `encx:"encrypt"`
//	    Address Address        `encx:"embedded"`
//	    Audit   string         `encx:"-"`
//	}
//
//   - encx:"encrypt" - string, *string or sql.NullString stored encrypted
//   - encx:"embedded" - struct or *struct whose own fields are processed
//   - encx:"-" or no tag - plain field
//
// Untagged anonymous struct fields are treated as parent types: their
// fields are inherited, and a child field with the same name overrides the
// parent's.
//
// # Lifecycle
//
// A Coordinator is bound to one unit of work. The host persistence layer
// calls it on load, before flush, for each update, for each insertion and
// after flush:
//
//	coord, _ := encxorm.NewCoordinator(encxorm.WithEncryptor(enc))
//	_ = coord.OnLoad(ctx, user)          // user.SSN is plaintext
//	_ = coord.OnPreFlush(ctx, uow)       // unchanged values get their original ciphertext back
//	_, _ = coord.OnPreUpdate(ctx, user)  // changed values are encrypted
//	_ = coord.OnFlush(ctx, uow)          // insertions are encrypted
//	_ = coord.OnPostFlush(ctx, uow)      // managed objects are plaintext again
//
// Unchanged values are never re-encrypted, so a randomized encryptor does
// not cause spurious writes.
//
// # Bulk Migration
//
// A Migrator walks every stored object of every eligible type and encrypts
// what is still plaintext, committing every batch:
//
//	m, _ := encxorm.NewMigrator(source, encxorm.WithRegistry(registry))
//	result, err := m.Migrate(ctx, encxorm.WithMigrationEncryptor("xchacha"), encxorm.WithBatchSize(50))
//
// # Encryptors
//
// RegisterBuiltinEncryptors adds the key-file encryptors "aes", "xchacha"
// and "age". HashiCorp Vault Transit and AWS KMS encryptors live in the
// providers/hashicorp and providers/aws packages.
//
// # Error Handling
//
//	if encxorm.IsCryptoError(err) {
//	    // wrong key, corrupted or foreign ciphertext
//	}
//	if encxorm.IsConfigurationError(err) {
//	    // unknown encryptor, bad tags; raised before any data is touched
//	}
//	if encxorm.IsLifecycleError(err) {
//	    // coordinator events called out of order
//	}
package encxorm

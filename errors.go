package encxorm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Error kinds
	ErrCrypto           = errors.New("crypto operation failed")
	ErrUnknownEncryptor = errors.New("unknown encryptor")
	ErrResolver         = errors.New("invalid field metadata")

	// Lifecycle errors
	ErrPhaseOrder      = errors.New("lifecycle phase out of order")
	ErrFlushInProgress = errors.New("flush in progress")

	// Object errors
	ErrInvalidObject = errors.New("invalid object")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// CryptoError reports an Encryptor failure while processing one field.
// Retrying with the same key cannot succeed, so callers should let it reach
// the transaction boundary.
type CryptoError struct {
	Direction Direction
	Type      string
	Field     string
	Err       error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %s of field '%s' on %s: %v", ErrCrypto, e.Direction, e.Field, e.Type, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

func (e *CryptoError) Is(target error) bool { return target == ErrCrypto }

// UnknownEncryptorError is returned when a requested encryptor name is not
// registered. It is always raised before any data is touched.
type UnknownEncryptorError struct {
	Name      string
	Supported []string
}

func (e *UnknownEncryptorError) Error() string {
	supported := append([]string(nil), e.Supported...)
	sort.Strings(supported)
	return fmt.Sprintf("%s '%s': supported encryptors are %s", ErrUnknownEncryptor, e.Name, strings.Join(supported, ", "))
}

func (e *UnknownEncryptorError) Is(target error) bool { return target == ErrUnknownEncryptor }

// ResolverError reports malformed field metadata on a type. No field of
// that type is processed.
type ResolverError struct {
	Type string
	Err  error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("%s on %s: %v", ErrResolver, e.Type, e.Err)
}

func (e *ResolverError) Unwrap() error { return e.Err }

func (e *ResolverError) Is(target error) bool { return target == ErrResolver }

// MigrationError aborts a bulk migration. Result holds the progress made so
// far; batches counted in Result.Commits are already durable.
type MigrationError struct {
	Type   string
	Result *MigrationResult
	Err    error
}

func (e *MigrationError) Error() string {
	committed := 0
	if e.Result != nil {
		committed = e.Result.Commits
	}
	return fmt.Sprintf("migration aborted on %s after %d committed batches: %v", e.Type, committed, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func NewInvalidObjectError(obj any, reason string) error {
	return fmt.Errorf("%w: %T %s", ErrInvalidObject, obj, reason)
}

func NewPhaseOrderError(event string, phase Phase) error {
	return fmt.Errorf("%w: %s received in phase %s", ErrPhaseOrder, event, phase)
}

// IsCryptoError returns true if err carries an Encryptor failure.
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrCrypto)
}

// IsConfigurationError returns true if the error was raised before any data
// was touched because of bad configuration or metadata.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrUnknownEncryptor) ||
		errors.Is(err, ErrResolver)
}

// IsLifecycleError returns true if the host drove the coordinator out of order.
func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrPhaseOrder) ||
		errors.Is(err, ErrFlushInProgress)
}

package encxorm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		crypto    bool
		config    bool
		lifecycle bool
	}{
		{"crypto", &CryptoError{Direction: Decrypt, Type: "User", Field: "SSN", Err: errors.New("bad tag")}, true, false, false},
		{"unknown encryptor", &UnknownEncryptorError{Name: "rot13"}, false, true, false},
		{"resolver", &ResolverError{Type: "User", Err: errors.New("bad tag")}, false, true, false},
		{"invalid configuration", fmt.Errorf("%w: batch size", ErrInvalidConfiguration), false, true, false},
		{"phase order", NewPhaseOrderError("flush", PhaseLoaded), false, false, true},
		{"flush in progress", fmt.Errorf("swap: %w", ErrFlushInProgress), false, false, true},
		{"invalid object", NewInvalidObjectError(42, "is not a pointer"), false, false, false},
		{"wrapped crypto in migration", &MigrationError{Type: "User", Err: &CryptoError{Err: errors.New("x")}}, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.Equal(t, tt.crypto, IsCryptoError(wrapped))
			assert.Equal(t, tt.config, IsConfigurationError(wrapped))
			assert.Equal(t, tt.lifecycle, IsLifecycleError(wrapped))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "crypto",
			err:  &CryptoError{Direction: Encrypt, Type: "User", Field: "SSN", Err: errors.New("key revoked")},
			want: "crypto operation failed: encrypt of field 'SSN' on User: key revoked",
		},
		{
			name: "unknown encryptor lists sorted names",
			err:  &UnknownEncryptorError{Name: "rot13", Supported: []string{"xchacha", "aes", "age"}},
			want: "unknown encryptor 'rot13': supported encryptors are aes, age, xchacha",
		},
		{
			name: "phase order",
			err:  NewPhaseOrderError("post-update", PhasePreFlush),
			want: "lifecycle phase out of order: post-update received in phase pre-flush",
		},
		{
			name: "migration without result",
			err:  &MigrationError{Type: "User", Err: errors.New("disk full")},
			want: "migration aborted on User after 0 committed batches: disk full",
		},
		{
			name: "invalid object",
			err:  NewInvalidObjectError(42, "is not a pointer"),
			want: "invalid object: int is not a pointer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestCryptoError_Unwrap(t *testing.T) {
	cause := errors.New("bad tag")
	err := fmt.Errorf("flush: %w", &CryptoError{Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrCrypto)
}

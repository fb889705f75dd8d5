package encxorm

import (
	"fmt"
	"log/slog"

	"github.com/hengadev/encxorm/internal/monitoring"
)

type settings struct {
	encryptor Encryptor
	resolver  Resolver
	registry  *Registry
	hook      ObservabilityHook
	logger    *slog.Logger
}

// Option configures a Processor, Coordinator or Migrator.
type Option func(s *settings) error

// WithEncryptor sets the active encryptor. A Coordinator restores this one
// on RestoreEncryptor.
func WithEncryptor(enc Encryptor) Option {
	return func(s *settings) error {
		if enc == nil {
			return fmt.Errorf("%w: encryptor cannot be nil", ErrInvalidConfiguration)
		}
		s.encryptor = enc
		return nil
	}
}

// WithResolver replaces the default TagResolver.
func WithResolver(r Resolver) Option {
	return func(s *settings) error {
		if r == nil {
			return fmt.Errorf("%w: resolver cannot be nil", ErrInvalidConfiguration)
		}
		s.resolver = r
		return nil
	}
}

// WithRegistry sets the registry used to look encryptors up by name.
func WithRegistry(r *Registry) Option {
	return func(s *settings) error {
		if r == nil {
			return fmt.Errorf("%w: registry cannot be nil", ErrInvalidConfiguration)
		}
		s.registry = r
		return nil
	}
}

func WithObservabilityHook(hook ObservabilityHook) Option {
	return func(s *settings) error {
		if hook == nil {
			hook = &monitoring.NoOpObservabilityHook{}
		}
		s.hook = hook
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfiguration)
		}
		s.logger = logger
		return nil
	}
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		resolver: defaultResolver,
		hook:     &monitoring.NoOpObservabilityHook{},
		logger:   monitoring.Discard(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// defaultResolver is shared so struct descriptors are computed once per
// process.
var defaultResolver = NewSchemaResolver(NewTagResolver())

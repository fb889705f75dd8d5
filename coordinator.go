package encxorm

import (
	"context"
	"fmt"
	"log/slog"
)

// Phase is the position of a Coordinator in the host's flush cycle.
type Phase int

const (
	PhaseLoaded Phase = iota
	PhasePreFlush
	PhaseFlushing
	PhasePostFlush
)

func (p Phase) String() string {
	switch p {
	case PhaseLoaded:
		return "loaded"
	case PhasePreFlush:
		return "pre-flush"
	case PhaseFlushing:
		return "flushing"
	case PhasePostFlush:
		return "post-flush"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// UnitOfWork is the view of the host's persistence session needed by the
// Coordinator.
type UnitOfWork interface {
	// IdentityMap returns every object currently managed by the session.
	IdentityMap() []any
	// ScheduledInsertions returns objects that will be inserted by the
	// current flush.
	ScheduledInsertions() []any
	// RecomputeChangeSet tells the host that obj was modified after its
	// change set was computed.
	RecomputeChangeSet(obj any) error
}

// Coordinator keeps managed objects decrypted in memory and encrypted in
// storage. The host calls one method per persistence event:
//
//	OnLoad                          after an object is hydrated
//	OnPreFlush                      before change sets are computed
//	OnFlush / OnPreUpdate           while the flush computes inserts and updates
//	OnPostUpdate                    after each update is written
//	OnPostFlush                     after the flush completes
//	Reset                           when the flush is rolled back
//
// Events outside that order return ErrPhaseOrder. A Coordinator belongs to a
// single unit of work and is not safe for concurrent use.
type Coordinator struct {
	processor *Processor
	cache     *DecryptionCache
	original  Encryptor
	phase     Phase
	logger    *slog.Logger
}

func NewCoordinator(opts ...Option) (*Coordinator, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	cache := NewDecryptionCache()
	return &Coordinator{
		processor: newProcessor(s, cache),
		cache:     cache,
		original:  s.encryptor,
		phase:     PhaseLoaded,
		logger:    s.logger,
	}, nil
}

// OnLoad decrypts a freshly loaded object. It is valid in every phase.
func (c *Coordinator) OnLoad(ctx context.Context, obj any) error {
	return c.processor.Process(ctx, obj, Decrypt)
}

// OnPreFlush re-encrypts every managed object that was decrypted since the
// last flush, then starts a new cycle with an empty cache.
func (c *Coordinator) OnPreFlush(ctx context.Context, uow UnitOfWork) error {
	if c.phase != PhaseLoaded {
		return NewPhaseOrderError("pre-flush", c.phase)
	}

	for _, obj := range uow.IdentityMap() {
		if !c.cache.Contains(Unwrap(obj)) {
			continue
		}
		if err := c.processor.Process(ctx, obj, Encrypt); err != nil {
			return err
		}
	}

	c.cache.Clear()
	c.transition(PhasePreFlush)
	return nil
}

// OnPreUpdate encrypts an object about to be updated. recompute is true when
// a field was newly encrypted, meaning the host's change set is stale.
func (c *Coordinator) OnPreUpdate(ctx context.Context, obj any) (recompute bool, err error) {
	if c.phase != PhasePreFlush && c.phase != PhaseFlushing {
		return false, NewPhaseOrderError("pre-update", c.phase)
	}

	before := c.processor.counters.Encrypted()
	if err := c.processor.Process(ctx, obj, Encrypt); err != nil {
		return false, err
	}
	c.transition(PhaseFlushing)
	return c.processor.counters.Encrypted() > before, nil
}

// OnFlush encrypts the objects scheduled for insertion and asks the host to
// recompute the change set of each object that changed.
func (c *Coordinator) OnFlush(ctx context.Context, uow UnitOfWork) error {
	if c.phase != PhasePreFlush && c.phase != PhaseFlushing {
		return NewPhaseOrderError("flush", c.phase)
	}

	for _, obj := range uow.ScheduledInsertions() {
		before := c.processor.counters.Encrypted()
		if err := c.processor.Process(ctx, obj, Encrypt); err != nil {
			return err
		}
		if c.processor.counters.Encrypted() > before {
			if err := uow.RecomputeChangeSet(obj); err != nil {
				return fmt.Errorf("failed to recompute change set: %w", err)
			}
		}
	}

	c.transition(PhaseFlushing)
	return nil
}

// OnPostUpdate decrypts an object right after it was written.
func (c *Coordinator) OnPostUpdate(ctx context.Context, obj any) error {
	if c.phase != PhaseFlushing {
		return NewPhaseOrderError("post-update", c.phase)
	}
	return c.processor.Process(ctx, obj, Decrypt)
}

// OnPostFlush decrypts every managed object and ends the cycle.
func (c *Coordinator) OnPostFlush(ctx context.Context, uow UnitOfWork) error {
	switch c.phase {
	case PhasePreFlush, PhaseFlushing, PhasePostFlush:
	default:
		return NewPhaseOrderError("post-flush", c.phase)
	}

	c.transition(PhasePostFlush)
	for _, obj := range uow.IdentityMap() {
		if err := c.processor.Process(ctx, obj, Decrypt); err != nil {
			return err
		}
	}
	c.transition(PhaseLoaded)
	return nil
}

// Reset abandons the current cycle, for instance after a rollback.
func (c *Coordinator) Reset() {
	c.cache.Clear()
	c.transition(PhaseLoaded)
}

// SetEncryptor swaps the active encryptor. It is refused while a flush is in
// progress.
func (c *Coordinator) SetEncryptor(enc Encryptor) error {
	if c.phase != PhaseLoaded {
		return fmt.Errorf("%w: cannot change encryptor in phase %s", ErrFlushInProgress, c.phase)
	}
	c.processor.encryptor = enc
	return nil
}

// RestoreEncryptor switches back to the encryptor the Coordinator was built
// with.
func (c *Coordinator) RestoreEncryptor() error {
	return c.SetEncryptor(c.original)
}

func (c *Coordinator) Encryptor() Encryptor {
	return c.processor.encryptor
}

func (c *Coordinator) Counters() *Counters {
	return c.processor.counters
}

func (c *Coordinator) Phase() Phase {
	return c.phase
}

// CacheLen returns the number of remembered ciphertexts.
func (c *Coordinator) CacheLen() int {
	return c.cache.Len()
}

func (c *Coordinator) transition(to Phase) {
	if c.phase == to {
		return
	}
	c.logger.Debug("lifecycle phase changed", "from", c.phase.String(), "to", to.String())
	c.phase = to
}

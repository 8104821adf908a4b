package quote

import (
	"context"
	"sync"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// NopLogger silently discards all messages.
type NopLogger struct{}

func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Warnf(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}
func (NopLogger) Debugf(string, ...interface{}) {}

// Persister is the write side of the persistence gateway.
type Persister interface {
	Save(ctx context.Context, c Configuration) error
	Clear(ctx context.Context) error
}

// Loader is the read side of the persistence gateway. Implementations return
// the empty configuration alongside any error.
type Loader interface {
	Load(ctx context.Context) (Configuration, error)
}

// Store owns the canonical configuration. Dispatch applies the reducer and
// schedules a background save; Flush and Advance write synchronously.
type Store struct {
	mu      sync.Mutex
	state   Configuration
	version uint64
	cleared bool

	persister Persister
	log       Logger

	// saveMu serializes writes so an older snapshot never lands after a
	// newer one.
	saveMu    sync.Mutex
	attempted uint64
	saved     uint64
	pending   sync.WaitGroup
}

// NewStore creates a store holding the empty configuration. A nil persister
// keeps the store purely in memory.
func NewStore(p Persister, log Logger) *Store {
	if log == nil {
		log = NopLogger{}
	}
	return &Store{state: Empty(), persister: p, log: log}
}

// State returns a copy of the current configuration.
func (s *Store) State() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a and returns the new configuration. The save is
// fire-and-forget; use Advance before navigating to another step.
func (s *Store) Dispatch(a Action) Configuration {
	next, version, persist := s.apply(a)
	if persist {
		s.schedule(version, next.Clone(), isClear(a))
	}
	return next
}

func (s *Store) apply(a Action) (Configuration, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Reduce(s.state, a)
	s.version++

	switch a.(type) {
	case LoadState, SetLoading:
		// Neither is stored, so a store with nothing unsaved stays that way.
		s.saveMu.Lock()
		if s.saved == s.version-1 {
			s.saved = s.version
		}
		s.saveMu.Unlock()
		return s.state.Clone(), s.version, false
	}
	s.cleared = isClear(a)
	return s.state.Clone(), s.version, true
}

func isClear(a Action) bool {
	_, ok := a.(ClearQuote)
	return ok
}

func (s *Store) schedule(version uint64, snap Configuration, clear bool) {
	if s.persister == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.persist(context.Background(), version, snap, clear, false); err != nil {
			s.log.Warnf("Background save of quote state failed: %v", err)
		}
	}()
}

func (s *Store) persist(ctx context.Context, version uint64, snap Configuration, clear, force bool) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version <= s.saved || (!force && version <= s.attempted) {
		return nil
	}
	s.attempted = version

	var err error
	if clear {
		err = s.persister.Clear(ctx)
	} else {
		err = s.persister.Save(ctx, snap)
	}
	if err != nil {
		return err
	}
	s.saved = version
	return nil
}

// Flush synchronously writes the current configuration unless it is already
// stored. After CLEAR_QUOTE it purges the stored blob instead.
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	version, snap, clear := s.version, s.state.Clone(), s.cleared
	s.mu.Unlock()
	return s.persist(ctx, version, snap, clear, true)
}

// Advance marks completed as done, moves to step to, and blocks until the
// result is stored. Callers navigate only after Advance returns.
func (s *Store) Advance(ctx context.Context, completed, to int) (Configuration, error) {
	s.Dispatch(CompleteStep{Step: completed})
	next := s.Dispatch(SetCurrentStep{Step: to})
	if err := s.Flush(ctx); err != nil {
		return next, err
	}
	return next, nil
}

// StartFresh clears the quote and purges the stored blob before returning.
func (s *Store) StartFresh(ctx context.Context) error {
	s.Dispatch(ClearQuote{})
	return s.Flush(ctx)
}

// ResetInMemory drops the in-memory configuration without touching the
// stored blob.
func (s *Store) ResetInMemory() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Empty()
	s.version++
	// Mark this version as handled so a Flush with no further edits does
	// not overwrite the stored blob with an empty quote.
	s.saveMu.Lock()
	if s.saved < s.version {
		s.saved = s.version
	}
	s.saveMu.Unlock()
	return s.state.Clone()
}

// Hydrate loads the stored configuration into the store. Load failures fall
// back to the empty configuration and are only logged. The loaded state is
// dropped when ctx ends or the store changes while Load is running, so a late
// read never replaces a reset or an edit made in the meantime.
func (s *Store) Hydrate(ctx context.Context, l Loader) Configuration {
	s.Dispatch(SetLoading{Loading: true})
	s.mu.Lock()
	started := s.version
	s.mu.Unlock()

	cfg, err := l.Load(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warnf("Could not restore saved quote, starting fresh: %v", err)
		cfg = Empty()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || s.version != started {
		s.log.Debugf("Discarding stale quote load (version %d, now %d)", started, s.version)
		return s.state.Clone()
	}
	s.state = Reduce(s.state, LoadState{State: cfg})
	s.version++
	s.saveMu.Lock()
	if s.saved < s.version {
		s.saved = s.version
	}
	s.saveMu.Unlock()
	return s.state.Clone()
}

// Wait blocks until every scheduled background save has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

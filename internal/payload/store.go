package payload

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/internal/override"
)

// snapshot is an immutable view of every payload value.
type snapshot struct {
	values     map[string]any
	generation uint64
}

// Store is the configuration collaborator that supplies override payloads.
// Reads are lock free; writes replace the whole snapshot and advance the
// generation.
type Store struct {
	snap atomic.Pointer[snapshot]

	// mu serialises writers.
	mu       sync.Mutex
	logger   observability.Logger
	onUpdate func(key string)
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for the store.
func WithStoreLogger(logger observability.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithUpdateHook sets a function called once for every key written.
func WithUpdateHook(fn func(key string)) StoreOption {
	return func(s *Store) {
		s.onUpdate = fn
	}
}

// NewStore creates an empty store at generation zero.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&snapshot{values: map[string]any{}})
	return s
}

// Lookup implements override.Source.
func (s *Store) Lookup(key string) (any, error) {
	v, ok := s.snap.Load().values[key]
	if !ok {
		return nil, &override.LookupError{Key: key}
	}
	return v, nil
}

// Generation implements override.Source.
func (s *Store) Generation() uint64 {
	return s.snap.Load().generation
}

// Keys returns the keys that currently hold a value, sorted.
func (s *Store) Keys() []string {
	return slices.Sorted(maps.Keys(s.snap.Load().values))
}

// Set publishes a single payload value.
func (s *Store) Set(key string, v any) error {
	return s.SetAll(map[string]any{key: v})
}

// SetAll publishes several payload values as one generation. Either every
// value is published or none is.
func (s *Store) SetAll(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	for key, v := range values {
		if !override.IsKnownKey(key) {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		if v == nil {
			return fmt.Errorf("payload: nil value for key %q", key)
		}
	}

	s.mu.Lock()
	cur := s.snap.Load()
	next := &snapshot{
		values:     maps.Clone(cur.values),
		generation: cur.generation + 1,
	}
	maps.Copy(next.values, values)
	s.snap.Store(next)
	s.mu.Unlock()

	keys := slices.Sorted(maps.Keys(values))
	s.logger.Info("payload updated",
		observability.Strings("keys", keys),
		observability.Uint64("generation", next.generation),
	)
	if s.onUpdate != nil {
		for _, key := range keys {
			s.onUpdate(key)
		}
	}
	return nil
}

var _ override.Source = (*Store)(nil)

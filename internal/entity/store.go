// internal/entity/store.go
package entity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotFound is returned when a key is not tracked and creation was not requested.
	ErrNotFound = errors.New("entity not found")
	// ErrTimeout is returned when a lease could not be obtained within the store's timeout.
	// This almost always means the calling flow already holds a lease on the same key.
	ErrTimeout = errors.New("timed out waiting for entity lease")
	// ErrInvalidUse is returned when a lease is used after release or destroy.
	ErrInvalidUse = errors.New("entity lease used outside of its validity window")
)

// DefaultTimeout bounds how long Acquire waits for a busy key.
const DefaultTimeout = 5 * time.Second

// Store tracks keyed mutable items and hands out exclusive leases on them.
//
// The map itself is guarded by mu, independently of any single key's lease, so
// inserts, destroys, snapshots and clears are serialized with respect to each other
// while holders of different keys proceed in parallel.
type Store[K comparable, T any] struct {
	name    string
	timeout time.Duration
	clone   func(T) T

	mu    sync.Mutex
	slots map[K]*slot[T]
}

type slot[T any] struct {
	sem       *semaphore.Weighted
	item      T
	present   bool
	committed T
	hasCommit bool
	destroyed atomic.Bool
}

// Option configures a Store.
type Option[K comparable, T any] func(*Store[K, T])

// WithTimeout overrides DefaultTimeout.
func WithTimeout[K comparable, T any](d time.Duration) Option[K, T] {
	return func(s *Store[K, T]) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSnapshot installs a copy function used when a lease is released. Snapshot
// returns these committed copies, so it never observes an item mid-mutation.
func WithSnapshot[K comparable, T any](clone func(T) T) Option[K, T] {
	return func(s *Store[K, T]) {
		s.clone = clone
	}
}

// NewStore creates an empty store. name is only used in log output.
func NewStore[K comparable, T any](name string, opts ...Option[K, T]) *Store[K, T] {
	s := &Store[K, T]{
		name:    name,
		timeout: DefaultTimeout,
		slots:   make(map[K]*slot[T]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire waits until no other lease on key is outstanding and returns a new one.
// If the key is not tracked, Acquire fails with ErrNotFound unless create is set,
// in which case a fresh empty slot is tracked. The wait is bounded by the store
// timeout (ErrTimeout) and by ctx.
func (s *Store[K, T]) Acquire(ctx context.Context, key K, create bool) (*Lease[K, T], error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for {
		sl, err := s.lookup(key, create)
		if err != nil {
			return nil, err
		}

		if err := sl.sem.Acquire(ctx, 1); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.WithFields(log.Fields{"store": s.name, "key": key}).Error("Lease acquisition timed out; possible re-entrant use.")
				return nil, ErrTimeout
			}
			return nil, err
		}

		// The slot may have been destroyed while we were queued behind its previous holder.
		if sl.destroyed.Load() {
			sl.sem.Release(1)
			continue
		}

		return &Lease[K, T]{store: s, key: key, slot: sl}, nil
	}
}

func (s *Store[K, T]) lookup(key K, create bool) (*slot[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[key]
	if !ok {
		if !create {
			return nil, ErrNotFound
		}
		sl = &slot[T]{sem: semaphore.NewWeighted(1)}
		s.slots[key] = sl
	}
	return sl, nil
}

// Snapshot returns the committed value of every present item. Items whose lease
// is currently held are reported as of their last release.
func (s *Store[K, T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]T, 0, len(s.slots))
	for _, sl := range s.slots {
		if sl.hasCommit {
			items = append(items, sl.committed)
		}
	}
	return items
}

// Keys returns every tracked key, including empty slots.
func (s *Store[K, T]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]K, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	return keys
}

// Clear stops tracking every key. Outstanding leases become invalid; flows queued
// on a cleared key observe it as never having existed.
func (s *Store[K, T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, sl := range s.slots {
		sl.destroyed.Store(true)
		delete(s.slots, k)
	}
	log.WithField("store", s.name).Debug("Store cleared.")
}

// commit publishes the slot's current item for Snapshot. Called with the slot's lease held.
func (s *Store[K, T]) commit(sl *slot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !sl.present {
		var zero T
		sl.committed = zero
		sl.hasCommit = false
		return
	}
	if s.clone != nil {
		sl.committed = s.clone(sl.item)
	} else {
		sl.committed = sl.item
	}
	sl.hasCommit = true
}

// remove drops the slot from the map if it is still the one tracked under key.
func (s *Store[K, T]) remove(key K, sl *slot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl.destroyed.Store(true)
	if cur, ok := s.slots[key]; ok && cur == sl {
		delete(s.slots, key)
	}
}

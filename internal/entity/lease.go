// internal/entity/lease.go
package entity

import "sync/atomic"

// Lease grants exclusive access to one key of a Store until Release or Destroy.
// A lease belongs to a single flow; it must not be shared between goroutines.
type Lease[K comparable, T any] struct {
	store    *Store[K, T]
	key      K
	slot     *slot[T]
	released atomic.Bool
}

// Key returns the key this lease covers.
func (l *Lease[K, T]) Key() K {
	return l.key
}

func (l *Lease[K, T]) valid() bool {
	return !l.released.Load() && !l.slot.destroyed.Load()
}

// Item returns the stored item and whether one is present.
func (l *Lease[K, T]) Item() (T, bool, error) {
	if !l.valid() {
		var zero T
		return zero, false, ErrInvalidUse
	}
	return l.slot.item, l.slot.present, nil
}

// Set replaces the stored item.
func (l *Lease[K, T]) Set(item T) error {
	if !l.valid() {
		return ErrInvalidUse
	}
	l.slot.item = item
	l.slot.present = true
	return nil
}

// Destroy stops tracking the key and ends the lease. The next acquirer sees the key
// as absent: a plain Acquire fails with ErrNotFound, a creating one gets a fresh slot.
func (l *Lease[K, T]) Destroy() error {
	if !l.released.CompareAndSwap(false, true) {
		return ErrInvalidUse
	}
	var zero T
	l.slot.item = zero
	l.slot.present = false
	l.store.remove(l.key, l.slot)
	l.slot.sem.Release(1)
	return nil
}

// Release ends the lease and publishes the item for Snapshot. Calling it more than
// once, or after Destroy, is a no-op so it can be deferred unconditionally.
func (l *Lease[K, T]) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	if !l.slot.destroyed.Load() {
		l.store.commit(l.slot)
	}
	l.slot.sem.Release(1)
}

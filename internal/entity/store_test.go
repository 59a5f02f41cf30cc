package entity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	A, B int
}

func newCounterStore(timeout time.Duration) *Store[int, *counter] {
	return NewStore[int, *counter]("test",
		WithTimeout[int, *counter](timeout),
		WithSnapshot[int, *counter](func(c *counter) *counter {
			cp := *c
			return &cp
		}),
	)
}

func TestAcquireMissingWithoutCreate(t *testing.T) {
	s := newCounterStore(time.Second)
	_, err := s.Acquire(context.Background(), 1, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcquireCreatesEmptySlot(t *testing.T) {
	s := newCounterStore(time.Second)
	lease, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)
	defer lease.Release()

	item, ok, err := lease.Item()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, item)
}

// TestExclusivity hammers a single key and checks no two holders ever overlap.
func TestExclusivity(t *testing.T) {
	s := newCounterStore(5 * time.Second)
	var active int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := s.Acquire(context.Background(), 7, true)
			if !assert.NoError(t, err) {
				return
			}
			defer lease.Release()

			assert.Equal(t, int32(1), atomic.AddInt32(&active, 1))
			item, ok, _ := lease.Item()
			if !ok {
				item = &counter{}
			}
			item.A++
			time.Sleep(time.Millisecond)
			item.B++
			_ = lease.Set(item)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	lease, err := s.Acquire(context.Background(), 7, false)
	require.NoError(t, err)
	defer lease.Release()
	item, _, _ := lease.Item()
	assert.Equal(t, 50, item.A)
	assert.Equal(t, 50, item.B)
}

func TestSecondAcquireBlocksUntilRelease(t *testing.T) {
	s := newCounterStore(time.Second)
	first, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := s.Acquire(context.Background(), 1, true)
		if assert.NoError(t, err) {
			close(acquired)
			second.Release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lease granted while first was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lease never granted")
	}
}

func TestReentrantAcquireTimesOut(t *testing.T) {
	s := newCounterStore(50 * time.Millisecond)
	lease, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)
	defer lease.Release()

	_, err = s.Acquire(context.Background(), 1, true)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDestroyThenAcquire(t *testing.T) {
	s := newCounterStore(time.Second)
	lease, err := s.Acquire(context.Background(), 3, true)
	require.NoError(t, err)
	require.NoError(t, lease.Set(&counter{A: 1}))
	require.NoError(t, lease.Destroy())

	_, err = s.Acquire(context.Background(), 3, false)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh, err := s.Acquire(context.Background(), 3, true)
	require.NoError(t, err)
	defer fresh.Release()
	item, ok, err := fresh.Item()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, item)
}

func TestWaiterObservesDestroy(t *testing.T) {
	s := newCounterStore(time.Second)
	holder, err := s.Acquire(context.Background(), 9, true)
	require.NoError(t, err)
	require.NoError(t, holder.Set(&counter{A: 5}))

	result := make(chan error, 1)
	go func() {
		_, err := s.Acquire(context.Background(), 9, false)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, holder.Destroy())
	assert.ErrorIs(t, <-result, ErrNotFound)
}

func TestLeaseInvalidAfterRelease(t *testing.T) {
	s := newCounterStore(time.Second)
	lease, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)
	lease.Release()
	lease.Release()

	_, _, err = lease.Item()
	assert.ErrorIs(t, err, ErrInvalidUse)
	assert.ErrorIs(t, lease.Set(&counter{}), ErrInvalidUse)
	assert.ErrorIs(t, lease.Destroy(), ErrInvalidUse)
}

func TestLeaseInvalidAfterDestroy(t *testing.T) {
	s := newCounterStore(time.Second)
	lease, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)
	require.NoError(t, lease.Destroy())

	_, _, err = lease.Item()
	assert.ErrorIs(t, err, ErrInvalidUse)
}

func TestSnapshotDoesNotSeeInProgressMutation(t *testing.T) {
	s := newCounterStore(time.Second)
	lease, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)
	require.NoError(t, lease.Set(&counter{A: 1, B: 1}))
	lease.Release()

	lease, err = s.Acquire(context.Background(), 1, false)
	require.NoError(t, err)
	item, _, _ := lease.Item()
	item.A = 2 // half-written: B not yet updated

	done := make(chan []*counter, 1)
	go func() { done <- s.Snapshot() }()

	var snap []*counter
	select {
	case snap = <-done:
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked on a held lease")
	}
	require.Len(t, snap, 1)
	assert.Equal(t, counter{A: 1, B: 1}, *snap[0])

	item.B = 2
	lease.Release()
	snap = s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, counter{A: 2, B: 2}, *snap[0])
}

func TestSnapshotSkipsEmptyAndDestroyed(t *testing.T) {
	s := newCounterStore(time.Second)
	empty, err := s.Acquire(context.Background(), 1, true)
	require.NoError(t, err)
	empty.Release()

	gone, err := s.Acquire(context.Background(), 2, true)
	require.NoError(t, err)
	require.NoError(t, gone.Set(&counter{A: 2}))
	gone.Release()

	gone, err = s.Acquire(context.Background(), 2, false)
	require.NoError(t, err)
	require.NoError(t, gone.Destroy())

	assert.Empty(t, s.Snapshot())
	assert.Equal(t, []int{1}, s.Keys())
}

func TestClear(t *testing.T) {
	s := newCounterStore(time.Second)
	for i := 0; i < 3; i++ {
		lease, err := s.Acquire(context.Background(), i, true)
		require.NoError(t, err)
		require.NoError(t, lease.Set(&counter{A: i}))
		lease.Release()
	}

	held, err := s.Acquire(context.Background(), 0, false)
	require.NoError(t, err)

	s.Clear()
	assert.Empty(t, s.Snapshot())
	assert.Empty(t, s.Keys())

	_, _, err = held.Item()
	assert.ErrorIs(t, err, ErrInvalidUse)
	held.Release()

	_, err = s.Acquire(context.Background(), 0, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

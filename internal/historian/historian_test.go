package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueSource is an in-memory Source.
type queueSource struct {
	mu     sync.Mutex
	events []models.RoomEvent
}

func (q *queueSource) push(evs ...models.RoomEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, evs...)
}

func (q *queueSource) pop(ctx context.Context, timeout time.Duration, max int) ([]models.RoomEvent, error) {
	q.mu.Lock()
	if len(q.events) > 0 {
		n := min(max, len(q.events))
		out := append([]models.RoomEvent(nil), q.events[:n]...)
		q.events = q.events[n:]
		q.mu.Unlock()
		return out, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.RoomEvent
	fail    error
}

func (s *recordingSink) InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		err := s.fail
		s.fail = nil
		return err
	}
	s.batches = append(s.batches, events)
	return nil
}

func (s *recordingSink) stored() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, b := range s.batches {
		for _, ev := range b {
			ids = append(ids, ev.UserID)
		}
	}
	return ids
}

func (s *recordingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sizes []int
	for _, b := range s.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func joined(userIDs ...int64) []models.RoomEvent {
	out := make([]models.RoomEvent, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, models.RoomEvent{Type: models.PlayerJoined, RoomID: 1, UserID: id})
	}
	return out
}

func start(t *testing.T, source Source, sink Sink, batchSize int, flush time.Duration) (*test.Hook, func()) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	svc := New(source, sink, batchSize, flush, logrus.NewEntry(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("historian did not stop")
		}
	}
	return hook, stop
}

func TestFullBatchesAreWrittenTogether(t *testing.T) {
	src := &queueSource{}
	src.push(joined(1, 2, 3, 4)...)
	sink := &recordingSink{}

	_, stop := start(t, src.pop, sink, 2, time.Hour)
	assert.Eventually(t, func() bool { return len(sink.stored()) == 4 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{1, 2, 3, 4}, sink.stored())
	assert.Equal(t, []int{2, 2}, sink.batchSizes())
}

func TestPartialBatchFlushedAfterDelay(t *testing.T) {
	src := &queueSource{}
	sink := &recordingSink{}

	_, stop := start(t, src.pop, sink, 50, 20*time.Millisecond)
	defer stop()

	src.push(joined(7)...)
	assert.Eventually(t, func() bool { return len(sink.stored()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPendingEventsWrittenOnStop(t *testing.T) {
	src := &queueSource{}
	src.push(joined(1, 2, 3)...)
	sink := &recordingSink{}

	_, stop := start(t, src.pop, sink, 10, time.Hour)
	// Give the loop time to pop; the batch is not full and the flush delay is long.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.stored())

	stop()
	assert.Equal(t, []int64{1, 2, 3}, sink.stored())
}

func TestFailedBatchIsDroppedAndLogged(t *testing.T) {
	src := &queueSource{}
	src.push(joined(1, 2)...)
	sink := &recordingSink{fail: errors.New("connection reset")}

	hook, stop := start(t, src.pop, sink, 2, 20*time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	src.push(joined(3, 4)...)
	assert.Eventually(t, func() bool { return len(sink.stored()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{3, 4}, sink.stored())
}

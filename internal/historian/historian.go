// internal/historian/historian.go persists the room event log. Events are popped
// from the redis queue, accumulated, and written to postgres in batches.
package historian

import (
	"context"
	"time"

	"github.com/jason-s-yu/matchroom/internal/models"
	log "github.com/sirupsen/logrus"
)

// Source pops up to max queued events, waiting at most timeout for the first one.
// It returns no events and no error when the wait expires.
type Source func(ctx context.Context, timeout time.Duration, max int) ([]models.RoomEvent, error)

// Sink stores a batch of events.
type Sink interface {
	InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error
}

// Service moves events from a Source to a Sink.
type Service struct {
	source    Source
	sink      Sink
	batchSize int
	flush     time.Duration
	logger    *log.Entry

	batch     []models.RoomEvent
	lastFlush time.Time
}

// New returns a Service that writes whenever batchSize events are pending or
// flush has passed since the last write.
func New(source Source, sink Sink, batchSize int, flush time.Duration, logger *log.Entry) *Service {
	if batchSize < 1 {
		batchSize = 1
	}
	if flush <= 0 {
		flush = 500 * time.Millisecond
	}
	return &Service{
		source:    source,
		sink:      sink,
		batchSize: batchSize,
		flush:     flush,
		logger:    logger,
		batch:     make([]models.RoomEvent, 0, batchSize),
	}
}

// Run drains the source until ctx is cancelled, then writes whatever is pending.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Historian started.")
	s.lastFlush = time.Now()
	for {
		if ctx.Err() != nil {
			// The run context is gone; the final write gets its own deadline.
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flushBatch(final)
			cancel()
			s.logger.Info("Historian stopped.")
			return nil
		}

		events, err := s.source(ctx, s.flush, s.batchSize-len(s.batch))
		if err != nil && ctx.Err() == nil {
			s.logger.Errorf("Failed to pop room events: %v", err)
			time.Sleep(s.flush)
		}
		s.batch = append(s.batch, events...)

		if ctx.Err() == nil && (len(s.batch) >= s.batchSize || time.Since(s.lastFlush) >= s.flush) {
			s.flushBatch(ctx)
		}
	}
}

// flushBatch writes the pending batch. A failed batch is dropped and logged.
func (s *Service) flushBatch(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}
	pending := s.batch
	s.batch = make([]models.RoomEvent, 0, s.batchSize)

	if err := s.sink.InsertRoomEvents(ctx, pending); err != nil {
		s.logger.WithField("events", len(pending)).Errorf("Failed to persist room events: %v", err)
		return
	}
	s.logger.Debugf("Flushed %d room events.", len(pending))
}

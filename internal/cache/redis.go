// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list room events are pushed to.
const DefaultQueueName = "matchroom_events"

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// EventLog queues room events on a Redis list for the historian to persist.
type EventLog struct {
	rdb   *redis.Client
	queue string
}

// NewEventLog pushes to queue, or DefaultQueueName if empty.
func NewEventLog(rdb *redis.Client, queue string) *EventLog {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &EventLog{rdb: rdb, queue: queue}
}

// Queue returns the list name events are pushed to.
func (l *EventLog) Queue() string {
	return l.queue
}

// LogRoomEvent assigns the event an id and pushes it to the queue.
func (l *EventLog) LogRoomEvent(ctx context.Context, ev models.RoomEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := l.rdb.RPush(ctx, l.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", l.queue, err)
	}
	return nil
}

// PopRoomEvents blocks up to timeout for the next event, then drains up to max-1
// more without blocking. It returns no events and no error on timeout.
func PopRoomEvents(ctx context.Context, rdb *redis.Client, queue string, timeout time.Duration, max int) ([]models.RoomEvent, error) {
	res, err := rdb.BLPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", queue, err)
	}

	payloads := []string{res[1]}
	if max > 1 {
		more, err := rdb.LPopCount(ctx, queue, max-1).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("LPop %s: %w", queue, err)
		}
		payloads = append(payloads, more...)
	}

	events := make([]models.RoomEvent, 0, len(payloads))
	for _, p := range payloads {
		var ev models.RoomEvent
		if err := json.Unmarshal([]byte(p), &ev); err != nil {
			// A malformed entry is dropped rather than blocking the queue.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

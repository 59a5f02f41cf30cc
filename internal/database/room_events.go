// internal/database/room_events.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/matchroom/internal/models"
)

// InsertRoomEvents persists a batch of room events in one transaction. Events
// already stored (same id) are skipped.
func (s *Store) InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	q := `
	INSERT INTO room_events (id, room_id, event_type, user_id, playlist_item_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			batch.Queue(q, ev.ID, ev.RoomID, ev.Type, nullableID(ev.UserID), nullableID(ev.PlaylistID), ev.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

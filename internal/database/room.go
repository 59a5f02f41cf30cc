// internal/database/room.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/matchroom/internal/models"
)

// Store is the postgres backing of the room service. It satisfies the room
// package's RoomStore, BeatmapLookup and UserLookup.
//
// Tables: rooms, room_participants, room_playlist_items, beatmaps, users.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadRoom reads a room that has not been opened yet, with its playlist.
func (s *Store) LoadRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	q := `
	SELECT id, name, match_type, queue_mode, password_hash, auto_start_ms, ends_at
	FROM rooms
	WHERE id = $1 AND status <> 'ended'
	`
	var (
		r           models.Room
		autoStartMs int64
		endsAt      *time.Time
	)
	err := s.pool.QueryRow(ctx, q, roomID).Scan(
		&r.ID,
		&r.Settings.Name,
		&r.Settings.MatchType,
		&r.Settings.QueueMode,
		&r.PasswordHash,
		&autoStartMs,
		&endsAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select room %d: %w", roomID, err)
	}
	r.Settings.AutoStartDuration = time.Duration(autoStartMs) * time.Millisecond
	r.EndsAt = endsAt

	items, err := s.playlist(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.Playlist = items
	return &r, nil
}

// MarkRoomActive records that the room is open, with its first host.
func (s *Store) MarkRoomActive(ctx context.Context, room *models.Room) error {
	q := `UPDATE rooms SET status = 'active', host_id = $2, opened_at = NOW() WHERE id = $1`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, room.ID, room.HostID)
		return err
	})
}

// UpdateSettings stores the room's settings and password hash.
func (s *Store) UpdateSettings(ctx context.Context, room *models.Room) error {
	q := `
	UPDATE rooms
	SET name = $2, match_type = $3, queue_mode = $4, password_hash = $5,
	    auto_start_ms = $6, current_item_id = $7
	WHERE id = $1
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			room.ID,
			room.Settings.Name,
			room.Settings.MatchType,
			room.Settings.QueueMode,
			room.PasswordHash,
			room.Settings.AutoStartDuration.Milliseconds(),
			room.Settings.PlaylistItemID,
		)
		return err
	})
}

// EndRoom closes the room and clears its participants.
func (s *Store) EndRoom(ctx context.Context, roomID int64) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1`, roomID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE rooms SET status = 'ended', ends_at = COALESCE(ends_at, NOW()) WHERE id = $1`, roomID)
		return err
	})
}

// AddParticipant records userID as present in roomID.
func (s *Store) AddParticipant(ctx context.Context, roomID, userID int64) error {
	q := `
	INSERT INTO room_participants (room_id, user_id, joined_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (room_id, user_id) DO UPDATE SET joined_at = NOW()
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, roomID, userID)
		return err
	})
}

// RemoveParticipant deletes userID's participation row.
func (s *Store) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	q := `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, roomID, userID)
		return err
	})
}

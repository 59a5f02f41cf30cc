// internal/database/playlist.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/matchroom/internal/models"
)

const itemColumns = `id, owner_id, beatmap_id, beatmap_checksum, ruleset_id,
	required_mods, allowed_mods, freestyle, expired, played_at`

func (s *Store) playlist(ctx context.Context, roomID int64) ([]*models.PlaylistItem, error) {
	q := `SELECT ` + itemColumns + ` FROM room_playlist_items WHERE room_id = $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("select playlist of room %d: %w", roomID, err)
	}
	defer rows.Close()

	var items []*models.PlaylistItem
	for rows.Next() {
		var (
			item              models.PlaylistItem
			required, allowed []byte
			playedAt          *time.Time
		)
		err := rows.Scan(
			&item.ID,
			&item.OwnerID,
			&item.BeatmapID,
			&item.BeatmapChecksum,
			&item.RulesetID,
			&required,
			&allowed,
			&item.Freestyle,
			&item.Expired,
			&playedAt,
		)
		if err != nil {
			return nil, err
		}
		if item.RequiredMods, err = decodeMods(required); err != nil {
			return nil, fmt.Errorf("item %d required mods: %w", item.ID, err)
		}
		if item.AllowedMods, err = decodeMods(allowed); err != nil {
			return nil, fmt.Errorf("item %d allowed mods: %w", item.ID, err)
		}
		item.PlayedAt = playedAt
		items = append(items, &item)
	}
	return items, rows.Err()
}

// InsertItem stores a new playlist item.
func (s *Store) InsertItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error {
	required, allowed, err := encodeItemMods(item)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO room_playlist_items (room_id, ` + itemColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			roomID,
			item.ID,
			item.OwnerID,
			item.BeatmapID,
			item.BeatmapChecksum,
			item.RulesetID,
			required,
			allowed,
			item.Freestyle,
			item.Expired,
			item.PlayedAt,
		)
		return err
	})
}

// UpdateItem overwrites a stored playlist item.
func (s *Store) UpdateItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error {
	required, allowed, err := encodeItemMods(item)
	if err != nil {
		return err
	}
	q := `
	UPDATE room_playlist_items
	SET beatmap_id = $3, beatmap_checksum = $4, ruleset_id = $5,
	    required_mods = $6, allowed_mods = $7, freestyle = $8,
	    expired = $9, played_at = $10
	WHERE room_id = $1 AND id = $2
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			roomID,
			item.ID,
			item.BeatmapID,
			item.BeatmapChecksum,
			item.RulesetID,
			required,
			allowed,
			item.Freestyle,
			item.Expired,
			item.PlayedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("playlist item %d of room %d not found", item.ID, roomID)
		}
		return nil
	})
}

// DeleteItem removes a playlist item.
func (s *Store) DeleteItem(ctx context.Context, roomID int64, itemID int64) error {
	q := `DELETE FROM room_playlist_items WHERE room_id = $1 AND id = $2`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, roomID, itemID)
		return err
	})
}

func encodeItemMods(item *models.PlaylistItem) (required, allowed []byte, err error) {
	if required, err = encodeMods(item.RequiredMods); err != nil {
		return nil, nil, err
	}
	if allowed, err = encodeMods(item.AllowedMods); err != nil {
		return nil, nil, err
	}
	return required, allowed, nil
}

// encodeMods renders mods as a json array; nil becomes [].
func encodeMods(mods []models.Mod) ([]byte, error) {
	if mods == nil {
		mods = []models.Mod{}
	}
	b, err := json.Marshal(mods)
	if err != nil {
		return nil, fmt.Errorf("encode mods: %w", err)
	}
	return b, nil
}

func decodeMods(b []byte) ([]models.Mod, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var mods []models.Mod
	if err := json.Unmarshal(b, &mods); err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, nil
	}
	return mods, nil
}

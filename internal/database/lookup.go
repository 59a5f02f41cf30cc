// internal/database/lookup.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/matchroom/internal/models"
)

// GetBeatmap fetches beatmap metadata, or nil if the id is unknown.
func (s *Store) GetBeatmap(ctx context.Context, beatmapID int64) (*models.Beatmap, error) {
	q := `SELECT id, beatmapset_id, checksum, ruleset_id FROM beatmaps WHERE id = $1`
	var b models.Beatmap
	err := s.pool.QueryRow(ctx, q, beatmapID).Scan(&b.ID, &b.SetID, &b.Checksum, &b.RulesetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select beatmap %d: %w", beatmapID, err)
	}
	return &b, nil
}

// IsRestricted reports whether the user may not join rooms. Unknown users are
// treated as restricted.
func (s *Store) IsRestricted(ctx context.Context, userID int64) (bool, error) {
	q := `SELECT is_restricted FROM users WHERE id = $1`
	var restricted bool
	err := s.pool.QueryRow(ctx, q, userID).Scan(&restricted)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("select user %d: %w", userID, err)
	}
	return restricted, nil
}

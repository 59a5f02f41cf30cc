// internal/room/playlist.go
package room

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/matchroom/internal/models"
)

// AddPlaylistItem validates item against beatmap metadata and enqueues it.
func (m *Manager) AddPlaylistItem(ctx context.Context, userID int64, item models.PlaylistItem) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if err := m.validateItem(ctx, &item); err != nil {
			return err
		}
		_, err := sr.queue.Add(ctx, userID, &item)
		return err
	})
}

// EditPlaylistItem replaces an existing item's beatmap, ruleset and mods.
func (m *Manager) EditPlaylistItem(ctx context.Context, userID int64, item models.PlaylistItem) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if err := m.validateItem(ctx, &item); err != nil {
			return err
		}
		_, err := sr.queue.Edit(ctx, userID, &item)
		return err
	})
}

// RemovePlaylistItem deletes an item from the queue.
func (m *Manager) RemovePlaylistItem(ctx context.Context, userID, itemID int64) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		return sr.queue.Remove(ctx, userID, itemID)
	})
}

func (m *Manager) validateItem(ctx context.Context, item *models.PlaylistItem) error {
	if item.RulesetID < 0 || item.RulesetID > models.MaxRulesetID {
		return fmt.Errorf("%w: invalid ruleset %d", models.ErrInvalidState, item.RulesetID)
	}
	bm, err := m.deps.Beatmaps.GetBeatmap(ctx, item.BeatmapID)
	if err != nil {
		return fmt.Errorf("look up beatmap: %w", err)
	}
	if bm == nil || bm.Checksum != item.BeatmapChecksum {
		return fmt.Errorf("%w: unknown beatmap %d", models.ErrInvalidState, item.BeatmapID)
	}
	if !bm.SupportsRuleset(item.RulesetID) {
		return fmt.Errorf("%w: beatmap %d cannot be played in ruleset %d", models.ErrInvalidState, item.BeatmapID, item.RulesetID)
	}
	if err := item.ValidateMods(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidState, err)
	}
	return nil
}

// ChangeBeatmapAvailability records the user's download progress. A ready user who
// loses the beatmap is no longer ready.
func (m *Manager) ChangeBeatmapAvailability(ctx context.Context, userID int64, availability models.BeatmapAvailability) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if availabilityEqual(user.BeatmapAvailability, availability) {
			return nil
		}
		user.BeatmapAvailability = availability
		sr.broadcast(models.Event{Type: models.EventUserBeatmapAvailability, UserID: userID, Available: &availability})

		if user.State == models.UserReady && availability.State != models.DownloadLocallyAvailable {
			sr.setUserState(user, models.UserIdle)
			sr.updateAutoStart()
		}
		return nil
	})
}

func availabilityEqual(a, b models.BeatmapAvailability) bool {
	if a.State != b.State {
		return false
	}
	if a.DownloadProgress == nil || b.DownloadProgress == nil {
		return a.DownloadProgress == b.DownloadProgress
	}
	return *a.DownloadProgress == *b.DownloadProgress
}

// ChangeUserMods sets the user's free mods. Each must be allowed by the current item.
func (m *Manager) ChangeUserMods(ctx context.Context, userID int64, mods []models.Mod) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		item := sr.queue.Current()
		if item == nil {
			return fmt.Errorf("%w: no current playlist item", models.ErrInvalidState)
		}
		seen := make(map[string]bool, len(mods))
		for _, mod := range mods {
			if seen[mod.Acronym] {
				return fmt.Errorf("%w: duplicate mod %s", models.ErrInvalidState, mod.Acronym)
			}
			seen[mod.Acronym] = true
			if !item.Allows(mod) {
				return fmt.Errorf("%w: mod %s is not allowed", models.ErrInvalidState, mod.Acronym)
			}
		}

		user.Mods = append([]models.Mod(nil), mods...)
		sr.broadcast(models.Event{Type: models.EventUserModsChanged, UserID: userID, Mods: user.Mods})
		return nil
	})
}

// ChangeUserStyle picks a personal difficulty and/or ruleset on a freestyle item.
// Both nil resets the user to the item's own.
func (m *Manager) ChangeUserStyle(ctx context.Context, userID int64, beatmapID *int64, rulesetID *int) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if beatmapID != nil || rulesetID != nil {
			if err := m.validateStyle(ctx, sr.queue.Current(), beatmapID, rulesetID); err != nil {
				return err
			}
		}

		user.BeatmapID = copyPtr(beatmapID)
		user.RulesetID = copyPtr(rulesetID)
		sr.broadcast(models.Event{Type: models.EventUserStyleChanged, UserID: userID, User: cloneUser(user)})
		return nil
	})
}

// validateStyle only allows difficulties from the same beatmap set as the item.
func (m *Manager) validateStyle(ctx context.Context, item *models.PlaylistItem, beatmapID *int64, rulesetID *int) error {
	if item == nil || !item.Freestyle {
		return fmt.Errorf("%w: current item is not freestyle", models.ErrInvalidState)
	}

	itemMap, err := m.deps.Beatmaps.GetBeatmap(ctx, item.BeatmapID)
	if err != nil {
		return fmt.Errorf("look up beatmap: %w", err)
	}
	if itemMap == nil {
		return fmt.Errorf("%w: unknown beatmap %d", models.ErrInvalidState, item.BeatmapID)
	}

	played := itemMap
	if beatmapID != nil {
		played, err = m.deps.Beatmaps.GetBeatmap(ctx, *beatmapID)
		if err != nil {
			return fmt.Errorf("look up beatmap: %w", err)
		}
		if played == nil || played.SetID != itemMap.SetID {
			return fmt.Errorf("%w: beatmap %d is not from the same set", models.ErrInvalidState, *beatmapID)
		}
	}

	ruleset := item.RulesetID
	if rulesetID != nil {
		ruleset = *rulesetID
	}
	if !played.SupportsRuleset(ruleset) {
		return fmt.Errorf("%w: beatmap %d cannot be played in ruleset %d", models.ErrInvalidState, played.ID, ruleset)
	}
	return nil
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

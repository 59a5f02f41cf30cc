// internal/queue/queue.go
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/matchroom/internal/models"
)

const (
	// HostItemLimit caps the host's non-expired items.
	HostItemLimit = 50
	// UserItemLimit caps every other user's non-expired items.
	UserItemLimit = 3
)

// Store persists playlist mutations. Each call happens before the in-memory playlist
// changes, so a failed write leaves the queue untouched.
type Store interface {
	InsertItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error
	UpdateItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error
	DeleteItem(ctx context.Context, roomID int64, itemID int64) error
}

// Listener observes queue changes. CurrentItemChanged is always reported before the
// ItemAdded/ItemRemoved that caused it.
type Listener interface {
	CurrentItemChanged(item *models.PlaylistItem)
	ItemAdded(item *models.PlaylistItem)
	ItemChanged(item *models.PlaylistItem)
	ItemRemoved(itemID int64)
}

// Queue selects the current playlist item of a room. It works directly on the room's
// Playlist and Settings.PlaylistItemID and must only be used under the room's lease.
type Queue struct {
	room     *models.Room
	mode     Mode
	store    Store
	listener Listener

	lastID int64
}

// New attaches a queue to room, selecting the current item from the existing playlist
// without notifying. A room restored from a snapshot therefore gets the same current
// item it had when the snapshot was taken. store and listener may be nil.
func New(room *models.Room, store Store, listener Listener) (*Queue, error) {
	mode, err := ModeFor(room.Settings.QueueMode)
	if err != nil {
		return nil, err
	}
	q := &Queue{room: room, mode: mode, store: store, listener: listener}
	for _, item := range room.Playlist {
		if item.ID > q.lastID {
			q.lastID = item.ID
		}
	}
	if next := q.pick(); next != nil {
		room.Settings.PlaylistItemID = next.ID
	} else {
		room.Settings.PlaylistItemID = 0
	}
	return q, nil
}

// Mode returns the active mode.
func (q *Queue) Mode() models.QueueMode {
	return q.mode.Kind()
}

// Current returns the current item, or nil for an empty playlist.
func (q *Queue) Current() *models.PlaylistItem {
	return q.room.CurrentItem()
}

// Upcoming returns the non-expired items in append order.
func (q *Queue) Upcoming() []*models.PlaylistItem {
	var out []*models.PlaylistItem
	for _, item := range q.room.Playlist {
		if !item.Expired {
			out = append(out, item)
		}
	}
	return out
}

// Add appends item on behalf of userID. The queue assigns the id and ownership.
func (q *Queue) Add(ctx context.Context, userID int64, item *models.PlaylistItem) (*models.PlaylistItem, error) {
	isHost := userID == q.room.HostID
	if err := q.mode.AllowAdd(isHost); err != nil {
		return nil, err
	}

	limit := UserItemLimit
	if isHost {
		limit = HostItemLimit
	}
	if q.countOwned(userID) >= limit {
		return nil, fmt.Errorf("%w: at most %d queued items per user", models.ErrInvalidState, limit)
	}
	if err := item.ValidateMods(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidState, err)
	}

	added := item.Clone()
	added.ID = q.nextID()
	added.OwnerID = userID
	added.Expired = false
	added.PlayedAt = nil

	if err := q.insert(ctx, added); err != nil {
		return nil, err
	}
	return added, nil
}

// Edit replaces the beatmap, ruleset and mods of an existing item.
func (q *Queue) Edit(ctx context.Context, userID int64, item *models.PlaylistItem) (*models.PlaylistItem, error) {
	existing, err := q.mutable(userID, item.ID)
	if err != nil {
		return nil, err
	}
	if err := item.ValidateMods(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidState, err)
	}

	updated := existing.Clone()
	updated.BeatmapID = item.BeatmapID
	updated.BeatmapChecksum = item.BeatmapChecksum
	updated.RulesetID = item.RulesetID
	updated.RequiredMods = append([]models.Mod(nil), item.RequiredMods...)
	updated.AllowedMods = append([]models.Mod(nil), item.AllowedMods...)
	updated.Freestyle = item.Freestyle

	if q.store != nil {
		if err := q.store.UpdateItem(ctx, q.room.ID, updated); err != nil {
			return nil, fmt.Errorf("update playlist item: %w", err)
		}
	}
	q.replace(updated)
	if q.listener != nil {
		q.listener.ItemChanged(updated)
	}
	return updated, nil
}

// Remove deletes an item. The last non-expired item can never be removed.
func (q *Queue) Remove(ctx context.Context, userID int64, itemID int64) error {
	if _, err := q.mutable(userID, itemID); err != nil {
		return err
	}
	if len(q.Upcoming()) <= 1 {
		return fmt.Errorf("%w: cannot remove the only remaining item", models.ErrInvalidState)
	}

	if q.store != nil {
		if err := q.store.DeleteItem(ctx, q.room.ID, itemID); err != nil {
			return fmt.Errorf("delete playlist item: %w", err)
		}
	}
	for i, item := range q.room.Playlist {
		if item.ID == itemID {
			q.room.Playlist = append(q.room.Playlist[:i], q.room.Playlist[i+1:]...)
			break
		}
	}
	q.UpdateCurrent()
	if q.listener != nil {
		q.listener.ItemRemoved(itemID)
	}
	return nil
}

// FinishCurrent marks the current item played at playedAt and advances. In host-only
// mode an exhausted queue gets a fresh copy of the finished item.
func (q *Queue) FinishCurrent(ctx context.Context, playedAt time.Time) error {
	cur := q.Current()
	if cur == nil || cur.Expired {
		return nil
	}

	played := cur.Clone()
	played.Expired = true
	at := playedAt
	played.PlayedAt = &at
	if q.store != nil {
		if err := q.store.UpdateItem(ctx, q.room.ID, played); err != nil {
			return fmt.Errorf("expire playlist item: %w", err)
		}
	}
	q.replace(played)
	if q.listener != nil {
		q.listener.ItemChanged(played)
	}

	if q.mode.RefillOnExhaust() && len(q.Upcoming()) == 0 {
		again := played.Clone()
		again.ID = q.nextID()
		again.OwnerID = q.room.HostID
		again.Expired = false
		again.PlayedAt = nil
		if err := q.insert(ctx, again); err != nil {
			return err
		}
		return nil
	}

	q.UpdateCurrent()
	return nil
}

// ChangeMode switches the selection policy and re-evaluates the current item. The
// playlist itself is not touched.
func (q *Queue) ChangeMode(kind models.QueueMode) error {
	mode, err := ModeFor(kind)
	if err != nil {
		return err
	}
	q.mode = mode
	q.UpdateCurrent()
	return nil
}

// UpdateCurrent re-runs selection and reports a changed current item.
func (q *Queue) UpdateCurrent() {
	next := q.pick()
	var id int64
	if next != nil {
		id = next.ID
	}
	if id == q.room.Settings.PlaylistItemID {
		return
	}
	q.room.Settings.PlaylistItemID = id
	if q.listener != nil {
		q.listener.CurrentItemChanged(next)
	}
}

func (q *Queue) pick() *models.PlaylistItem {
	if upcoming := q.Upcoming(); len(upcoming) > 0 {
		return q.mode.Next(upcoming, q.room.Playlist)
	}
	return q.lastPlayed()
}

// lastPlayed is the current item once everything has expired.
func (q *Queue) lastPlayed() *models.PlaylistItem {
	var last *models.PlaylistItem
	for _, item := range q.room.Playlist {
		if last == nil {
			last = item
			continue
		}
		switch {
		case item.PlayedAt == nil:
		case last.PlayedAt == nil || item.PlayedAt.After(*last.PlayedAt):
			last = item
		case item.PlayedAt.Equal(*last.PlayedAt) && item.ID > last.ID:
			last = item
		}
	}
	return last
}

// mutable returns the item if userID may edit or remove it right now.
func (q *Queue) mutable(userID, itemID int64) (*models.PlaylistItem, error) {
	item := q.room.FindItem(itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: playlist item %d does not exist", models.ErrInvalidState, itemID)
	}
	if item.OwnerID != userID && q.room.HostID != userID {
		return nil, fmt.Errorf("%w: only the owner or the host can change item %d", models.ErrNotHost, itemID)
	}
	if item.Expired {
		return nil, fmt.Errorf("%w: playlist item %d has already been played", models.ErrInvalidState, itemID)
	}
	if item.ID == q.room.Settings.PlaylistItemID && q.room.State != models.RoomOpen {
		return nil, fmt.Errorf("%w: playlist item %d is being played", models.ErrInvalidState, itemID)
	}
	return item, nil
}

func (q *Queue) insert(ctx context.Context, item *models.PlaylistItem) error {
	if q.store != nil {
		if err := q.store.InsertItem(ctx, q.room.ID, item); err != nil {
			return fmt.Errorf("insert playlist item: %w", err)
		}
	}
	q.room.Playlist = append(q.room.Playlist, item)
	q.UpdateCurrent()
	if q.listener != nil {
		q.listener.ItemAdded(item)
	}
	return nil
}

func (q *Queue) replace(item *models.PlaylistItem) {
	for i, existing := range q.room.Playlist {
		if existing.ID == item.ID {
			q.room.Playlist[i] = item
			return
		}
	}
}

func (q *Queue) countOwned(userID int64) int {
	n := 0
	for _, item := range q.Upcoming() {
		if item.OwnerID == userID {
			n++
		}
	}
	return n
}

// nextID never reuses the id of a removed item.
func (q *Queue) nextID() int64 {
	q.lastID++
	return q.lastID
}

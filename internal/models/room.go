// internal/models/room.go
package models

import "time"

// RoomSettings is the host-editable configuration of a room.
type RoomSettings struct {
	Name           string    `json:"name"`
	PlaylistItemID int64     `json:"playlist_item_id"`
	MatchType      MatchType `json:"match_type"`
	QueueMode      QueueMode `json:"queue_mode"`
	// Password is only ever set on incoming change requests; rooms keep the hash.
	Password string `json:"password,omitempty"`
	// AutoStartDuration starts a protected match countdown once someone is ready. Zero disables it.
	AutoStartDuration time.Duration `json:"auto_start_duration"`
}

// RoomUser is one member of a room.
type RoomUser struct {
	UserID              int64               `json:"user_id"`
	State               UserState           `json:"state"`
	BeatmapAvailability BeatmapAvailability `json:"beatmap_availability"`
	Mods                []Mod               `json:"mods"`
	BeatmapID           *int64              `json:"beatmap_id,omitempty"`
	RulesetID           *int                `json:"ruleset_id,omitempty"`

	// MatchState is owned by the installed match controller.
	MatchState any `json:"match_state,omitempty"`
}

// HasBeatmap reports whether the user can play the current item without downloading.
func (u *RoomUser) HasBeatmap() bool {
	return u.BeatmapAvailability.State == DownloadLocallyAvailable
}

// Room is the serializable state of a room. The room package wraps it with its
// queue, countdowns and match controller; everything here can be snapshotted.
type Room struct {
	ID         int64           `json:"room_id"`
	State      RoomState       `json:"state"`
	Settings   RoomSettings    `json:"settings"`
	Users      []*RoomUser     `json:"users"`
	HostID     int64           `json:"host_id"`
	Playlist   []*PlaylistItem `json:"playlist"`
	Countdowns []CountdownInfo `json:"active_countdowns"`
	MatchState any             `json:"match_state,omitempty"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	// PasswordHash is the argon2id hash of the room password; never sent to clients.
	PasswordHash string `json:"-"`
}

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// FindUser returns the member with the given id, or nil.
func (r *Room) FindUser(userID int64) *RoomUser {
	for _, u := range r.Users {
		if u.UserID == userID {
			return u
		}
	}
	return nil
}

// Host returns the host member, or nil for an empty room.
func (r *Room) Host() *RoomUser {
	return r.FindUser(r.HostID)
}

// FindItem returns the playlist item with the given id, or nil.
func (r *Room) FindItem(id int64) *PlaylistItem {
	for _, item := range r.Playlist {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// CurrentItem returns the item Settings.PlaylistItemID points at.
func (r *Room) CurrentItem() *PlaylistItem {
	return r.FindItem(r.Settings.PlaylistItemID)
}

// UsersInState returns members whose state is any of states, in join order.
func (r *Room) UsersInState(states ...UserState) []*RoomUser {
	var out []*RoomUser
	for _, u := range r.Users {
		for _, s := range states {
			if u.State == s {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the room's own data. Match states are shared.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Settings.Password = ""
	cp.Users = make([]*RoomUser, len(r.Users))
	for i, u := range r.Users {
		uc := *u
		uc.Mods = append([]Mod(nil), u.Mods...)
		cp.Users[i] = &uc
	}
	cp.Playlist = make([]*PlaylistItem, len(r.Playlist))
	for i, item := range r.Playlist {
		cp.Playlist[i] = item.Clone()
	}
	cp.Countdowns = append([]CountdownInfo(nil), r.Countdowns...)
	return &cp
}

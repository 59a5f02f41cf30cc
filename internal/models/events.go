// internal/models/events.go
package models

import "time"

// EventType names a message broadcast to room connections.
type EventType string

const (
	EventUserJoined              EventType = "user_joined"
	EventUserLeft                EventType = "user_left"
	EventUserKicked              EventType = "user_kicked"
	EventHostChanged             EventType = "host_changed"
	EventSettingsChanged         EventType = "settings_changed"
	EventUserStateChanged        EventType = "user_state_changed"
	EventRoomStateChanged        EventType = "room_state_changed"
	EventMatchEvent              EventType = "match_event"
	EventMatchUserStateChanged   EventType = "match_user_state_changed"
	EventMatchRoomStateChanged   EventType = "match_room_state_changed"
	EventPlaylistItemAdded       EventType = "playlist_item_added"
	EventPlaylistItemChanged     EventType = "playlist_item_changed"
	EventPlaylistItemRemoved     EventType = "playlist_item_removed"
	EventUserBeatmapAvailability EventType = "user_beatmap_availability_changed"
	EventUserModsChanged         EventType = "user_mods_changed"
	EventUserStyleChanged        EventType = "user_style_changed"
	EventLoadRequested           EventType = "load_requested"
	EventGameplayStarted         EventType = "gameplay_started"
	EventGameplayAborted         EventType = "gameplay_aborted"
	EventResultsReady            EventType = "results_ready"
)

// MatchEventKind distinguishes payloads of EventMatchEvent.
type MatchEventKind string

const (
	MatchCountdownStarted MatchEventKind = "countdown_started"
	MatchCountdownStopped MatchEventKind = "countdown_stopped"
)

// CountdownInfo is the client view of an active countdown. TimeRemaining is
// computed from the countdown's end time when the info is produced.
type CountdownInfo struct {
	ID            int           `json:"id"`
	Type          string        `json:"type"`
	TimeRemaining time.Duration `json:"time_remaining"`
	Protected     bool          `json:"protected,omitempty"`
}

// Event is the single envelope for everything a room sends to clients.
type Event struct {
	Type   EventType `json:"type"`
	RoomID int64     `json:"room_id"`

	UserID     int64                `json:"user_id,omitempty"`
	User       *RoomUser            `json:"user,omitempty"`
	UserState  UserState            `json:"user_state,omitempty"`
	RoomState  RoomState            `json:"room_state,omitempty"`
	Settings   *RoomSettings        `json:"settings,omitempty"`
	Item       *PlaylistItem        `json:"item,omitempty"`
	ItemID     int64                `json:"item_id,omitempty"`
	MatchEvent MatchEventKind       `json:"match_event,omitempty"`
	Countdown  *CountdownInfo       `json:"countdown,omitempty"`
	MatchState any                  `json:"match_state,omitempty"`
	Mods       []Mod                `json:"mods,omitempty"`
	Available  *BeatmapAvailability `json:"availability,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

// MatchRequestType names a request routed through sendMatchRequest.
type MatchRequestType string

const (
	RequestStartMatchCountdown MatchRequestType = "start_match_countdown"
	RequestStopCountdown       MatchRequestType = "stop_countdown"
	RequestChangeTeam          MatchRequestType = "change_team"
)

// MatchRequest is a custom in-room request. Fields are used per Type.
type MatchRequest struct {
	Type        MatchRequestType `json:"type"`
	Duration    time.Duration    `json:"duration,omitempty"`
	CountdownID int              `json:"countdown_id,omitempty"`
	TeamID      int              `json:"team_id"`
}

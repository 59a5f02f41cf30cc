// internal/models/room_event.go
package models

import "time"

// RoomEventType names an entry of the persistent room event log.
type RoomEventType string

const (
	RoomCreated   RoomEventType = "room_created"
	RoomDisbanded RoomEventType = "room_disbanded"
	PlayerJoined  RoomEventType = "player_joined"
	PlayerLeft    RoomEventType = "player_left"
	PlayerKicked  RoomEventType = "player_kicked"
	HostChanged   RoomEventType = "host_changed"
	GameStarted   RoomEventType = "game_started"
	GameCompleted RoomEventType = "game_completed"
	GameAborted   RoomEventType = "game_aborted"
)

// RoomEvent is one entry of the room event log. ID is assigned by the logger.
type RoomEvent struct {
	ID         string        `json:"id"`
	Type       RoomEventType `json:"type"`
	RoomID     int64         `json:"room_id"`
	UserID     int64         `json:"user_id,omitempty"`
	PlaylistID int64         `json:"playlist_item_id,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

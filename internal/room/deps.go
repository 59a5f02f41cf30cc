// internal/room/deps.go
package room

import (
	"context"
	"time"

	"github.com/jason-s-yu/matchroom/internal/countdown"
	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/jason-s-yu/matchroom/internal/queue"
	log "github.com/sirupsen/logrus"
)

// RoomStore persists rooms, their participants and their playlists.
type RoomStore interface {
	queue.Store
	// LoadRoom returns the stored definition of a room that has not been opened yet:
	// settings, playlist, password hash and end time. Returns nil, nil if no such room.
	LoadRoom(ctx context.Context, roomID int64) (*models.Room, error)
	MarkRoomActive(ctx context.Context, room *models.Room) error
	UpdateSettings(ctx context.Context, room *models.Room) error
	EndRoom(ctx context.Context, roomID int64) error
	AddParticipant(ctx context.Context, roomID, userID int64) error
	RemoveParticipant(ctx context.Context, roomID, userID int64) error
}

// BeatmapLookup resolves beatmap metadata. GetBeatmap returns nil, nil for unknown ids.
type BeatmapLookup interface {
	GetBeatmap(ctx context.Context, beatmapID int64) (*models.Beatmap, error)
}

// UserLookup answers account checks made on join.
type UserLookup interface {
	IsRestricted(ctx context.Context, userID int64) (bool, error)
}

// EventLogger appends to the room event log.
type EventLogger interface {
	LogRoomEvent(ctx context.Context, ev models.RoomEvent) error
}

// Broadcaster delivers events to connections. A room has two groups: every member,
// and the members currently taking part in gameplay.
type Broadcaster interface {
	Broadcast(roomID int64, ev models.Event)
	BroadcastGameplay(roomID int64, ev models.Event)
	SendToUser(userID int64, ev models.Event)

	AddToRoom(roomID, userID int64)
	RemoveFromRoom(roomID, userID int64)
	AddToGameplay(roomID, userID int64)
	RemoveFromGameplay(roomID, userID int64)
}

// Deps are the collaborators a Manager calls into. Clock and Logger may be nil.
type Deps struct {
	Store    RoomStore
	Beatmaps BeatmapLookup
	Users    UserLookup
	Events   EventLogger
	Hub      Broadcaster
	Clock    countdown.Clock
	Logger   *log.Entry
}

// Config tunes a Manager. Zero values fall back to defaults.
type Config struct {
	LeaseTimeout      time.Duration
	ForceStartTimeout time.Duration
}

// DefaultForceStartTimeout is how long loading players are waited for.
const DefaultForceStartTimeout = 30 * time.Second

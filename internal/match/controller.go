// internal/match/controller.go
package match

import (
	"fmt"

	"github.com/jason-s-yu/matchroom/internal/models"
)

// Room is what a controller sees of the room it is installed in. All calls happen
// under the room's lease.
type Room interface {
	// Members returns the room's users in join order.
	Members() []*models.RoomUser
	// SetRoomMatchState replaces the room-level match state and broadcasts it.
	SetRoomMatchState(state any)
	// UserMatchStateChanged broadcasts user's current MatchState.
	UserMatchStateChanged(user *models.RoomUser)
}

// Controller implements the rules of one match type. It owns RoomUser.MatchState
// and Room.MatchState while installed. The set of controllers is closed.
type Controller interface {
	Type() models.MatchType
	// attach publishes the controller's room-level state.
	attach()
	OnUserJoined(user *models.RoomUser)
	OnUserLeft(user *models.RoomUser)
	// OnRequest handles a match request the room does not handle itself.
	OnRequest(user *models.RoomUser, req models.MatchRequest) error
}

// New builds the controller for kind without installing it.
func New(kind models.MatchType, room Room) (Controller, error) {
	switch kind {
	case models.MatchHeadToHead:
		return &HeadToHead{room: room}, nil
	case models.MatchTeamVersus:
		return NewTeamVersus(room), nil
	}
	return nil, fmt.Errorf("%w: unknown match type %q", models.ErrInvalidState, kind)
}

// Install builds the controller for kind and replays a join for every member in
// join order, so per-user state is complete before it handles anything else.
func Install(kind models.MatchType, room Room) (Controller, error) {
	c, err := New(kind, room)
	if err != nil {
		return nil, err
	}
	members := room.Members()
	for _, u := range members {
		u.MatchState = nil
	}
	c.attach()
	for _, u := range members {
		c.OnUserJoined(u)
	}
	return c, nil
}

// HeadToHead is free-for-all: no per-user or room match state.
type HeadToHead struct {
	room Room
}

func (h *HeadToHead) Type() models.MatchType { return models.MatchHeadToHead }

func (h *HeadToHead) attach() {
	h.room.SetRoomMatchState(nil)
}

func (h *HeadToHead) OnUserJoined(user *models.RoomUser) {}

func (h *HeadToHead) OnUserLeft(user *models.RoomUser) {}

func (h *HeadToHead) OnRequest(user *models.RoomUser, req models.MatchRequest) error {
	return fmt.Errorf("%w: %s is not supported in head to head", models.ErrInvalidState, req.Type)
}

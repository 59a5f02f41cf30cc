// internal/match/team_versus.go
package match

import (
	"fmt"

	"github.com/jason-s-yu/matchroom/internal/models"
)

// Team is one side of a team versus match.
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TeamVersusRoomState is the room-level match state of team versus.
type TeamVersusRoomState struct {
	Teams []Team `json:"teams"`
}

// TeamVersusUserState is attached to each RoomUser.MatchState.
type TeamVersusUserState struct {
	TeamID int `json:"team_id"`
}

// TeamVersus splits the room into two teams and keeps them balanced on join.
type TeamVersus struct {
	room  Room
	state TeamVersusRoomState
}

func NewTeamVersus(room Room) *TeamVersus {
	return &TeamVersus{
		room: room,
		state: TeamVersusRoomState{Teams: []Team{
			{ID: 0, Name: "Team Red"},
			{ID: 1, Name: "Team Blue"},
		}},
	}
}

func (t *TeamVersus) Type() models.MatchType { return models.MatchTeamVersus }

func (t *TeamVersus) attach() {
	t.room.SetRoomMatchState(t.state)
}

// OnUserJoined puts user on the smallest team, lowest id first among equals.
func (t *TeamVersus) OnUserJoined(user *models.RoomUser) {
	user.MatchState = &TeamVersusUserState{TeamID: t.smallestTeam()}
	t.room.UserMatchStateChanged(user)
}

// OnUserLeft needs no bookkeeping: team sizes are counted from the members.
func (t *TeamVersus) OnUserLeft(user *models.RoomUser) {}

func (t *TeamVersus) OnRequest(user *models.RoomUser, req models.MatchRequest) error {
	if req.Type != models.RequestChangeTeam {
		return fmt.Errorf("%w: %s is not supported in team versus", models.ErrInvalidState, req.Type)
	}
	if !t.validTeam(req.TeamID) {
		return fmt.Errorf("%w: team %d does not exist", models.ErrInvalidState, req.TeamID)
	}
	if cur, ok := user.MatchState.(*TeamVersusUserState); ok && cur.TeamID == req.TeamID {
		return nil
	}
	user.MatchState = &TeamVersusUserState{TeamID: req.TeamID}
	t.room.UserMatchStateChanged(user)
	return nil
}

// TeamOf returns the team of user, or false if none is assigned.
func TeamOf(user *models.RoomUser) (int, bool) {
	s, ok := user.MatchState.(*TeamVersusUserState)
	if !ok {
		return 0, false
	}
	return s.TeamID, true
}

func (t *TeamVersus) smallestTeam() int {
	counts := make(map[int]int, len(t.state.Teams))
	for _, u := range t.room.Members() {
		if id, ok := TeamOf(u); ok {
			counts[id]++
		}
	}
	best := t.state.Teams[0].ID
	for _, team := range t.state.Teams[1:] {
		if counts[team.ID] < counts[best] {
			best = team.ID
		}
	}
	return best
}

func (t *TeamVersus) validTeam(id int) bool {
	for _, team := range t.state.Teams {
		if team.ID == id {
			return true
		}
	}
	return false
}

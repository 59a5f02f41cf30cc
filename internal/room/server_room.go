// internal/room/server_room.go
package room

import (
	"context"

	"github.com/jason-s-yu/matchroom/internal/countdown"
	"github.com/jason-s-yu/matchroom/internal/match"
	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/jason-s-yu/matchroom/internal/queue"
	log "github.com/sirupsen/logrus"
)

// ServerRoom is a room as held in the room store: the serializable state plus the
// queue, countdowns and match controller driving it. It is only touched while the
// room's lease is held.
type ServerRoom struct {
	room       *models.Room
	queue      *queue.Queue
	countdowns *countdown.Engine
	controller match.Controller

	mgr    *Manager
	logger *log.Entry
}

func newServerRoom(m *Manager, room *models.Room) (*ServerRoom, error) {
	if room.Settings.MatchType == "" {
		room.Settings.MatchType = models.MatchHeadToHead
	}
	if room.Settings.QueueMode == "" {
		room.Settings.QueueMode = models.QueueHostOnly
	}
	room.State = models.RoomOpen

	sr := &ServerRoom{
		room:   room,
		mgr:    m,
		logger: m.logger.WithField("room_id", room.ID),
	}

	q, err := queue.New(room, m.deps.Store, sr)
	if err != nil {
		return nil, err
	}
	sr.queue = q
	sr.countdowns = countdown.NewEngine(m.deps.Clock, m.dispatcher(room.ID), sr, sr.logger)

	c, err := match.Install(room.Settings.MatchType, sr)
	if err != nil {
		return nil, err
	}
	sr.controller = c
	return sr, nil
}

// Room returns the live room state. Callers must hold the room's lease.
func (sr *ServerRoom) Room() *models.Room {
	return sr.room
}

// snapshot copies the room for delivery outside the lease.
func (sr *ServerRoom) snapshot() *models.Room {
	sr.room.Countdowns = sr.countdowns.Infos()
	return sr.room.Clone()
}

func (sr *ServerRoom) shutdown() {
	sr.countdowns.Shutdown()
}

func (sr *ServerRoom) broadcast(ev models.Event) {
	ev.RoomID = sr.room.ID
	sr.mgr.deps.Hub.Broadcast(sr.room.ID, ev)
}

func (sr *ServerRoom) broadcastGameplay(ev models.Event) {
	ev.RoomID = sr.room.ID
	sr.mgr.deps.Hub.BroadcastGameplay(sr.room.ID, ev)
}

// logEvent appends to the room event log. The log is best effort.
func (sr *ServerRoom) logEvent(ctx context.Context, typ models.RoomEventType, userID int64) {
	if sr.mgr.deps.Events == nil {
		return
	}
	ev := models.RoomEvent{
		Type:       typ,
		RoomID:     sr.room.ID,
		UserID:     userID,
		PlaylistID: sr.room.Settings.PlaylistItemID,
		CreatedAt:  sr.countdowns.Now(),
	}
	if err := sr.mgr.deps.Events.LogRoomEvent(ctx, ev); err != nil {
		sr.logger.WithField("event", typ).Warnf("Failed to log room event: %v", err)
	}
}

// setUserState also drops the user from the gameplay group once they leave it for
// anything but results, which finishGameplay releases after results_ready.
func (sr *ServerRoom) setUserState(user *models.RoomUser, state models.UserState) {
	from := user.State
	user.State = state
	sr.broadcast(models.Event{Type: models.EventUserStateChanged, UserID: user.UserID, UserState: state})
	if inGameplayGroup(from) && !inGameplayGroup(state) && state != models.UserResults {
		sr.mgr.deps.Hub.RemoveFromGameplay(sr.room.ID, user.UserID)
	}
}

func inGameplayGroup(s models.UserState) bool {
	return s.IsGameplayState() || s == models.UserFinishedPlay
}

func (sr *ServerRoom) setRoomState(state models.RoomState) {
	if sr.room.State == state {
		return
	}
	sr.room.State = state
	sr.broadcast(models.Event{Type: models.EventRoomStateChanged, RoomState: state})
}

func (sr *ServerRoom) isHost(userID int64) bool {
	return sr.room.HostID == userID
}

func (sr *ServerRoom) settingsChanged() {
	settings := sr.room.Settings
	sr.broadcast(models.Event{Type: models.EventSettingsChanged, Settings: &settings})
}

// match.Room

func (sr *ServerRoom) Members() []*models.RoomUser {
	return sr.room.Users
}

func (sr *ServerRoom) SetRoomMatchState(state any) {
	sr.room.MatchState = state
	sr.broadcast(models.Event{Type: models.EventMatchRoomStateChanged, MatchState: state})
}

func (sr *ServerRoom) UserMatchStateChanged(user *models.RoomUser) {
	sr.broadcast(models.Event{Type: models.EventMatchUserStateChanged, UserID: user.UserID, MatchState: user.MatchState})
}

// countdown.Listener

func (sr *ServerRoom) CountdownStarted(cd *countdown.Countdown) {
	sr.countdownEvent(models.MatchCountdownStarted, cd)
}

func (sr *ServerRoom) CountdownStopped(cd *countdown.Countdown) {
	sr.countdownEvent(models.MatchCountdownStopped, cd)
}

func (sr *ServerRoom) countdownEvent(kind models.MatchEventKind, cd *countdown.Countdown) {
	sr.room.Countdowns = sr.countdowns.Infos()
	info := cd.Info(sr.countdowns.Now())
	sr.broadcast(models.Event{Type: models.EventMatchEvent, MatchEvent: kind, Countdown: &info})
}

// queue.Listener

func (sr *ServerRoom) CurrentItemChanged(item *models.PlaylistItem) {
	sr.settingsChanged()
	sr.enforceItemRules(item)
}

func (sr *ServerRoom) ItemAdded(item *models.PlaylistItem) {
	sr.broadcast(models.Event{Type: models.EventPlaylistItemAdded, Item: item.Clone()})
}

func (sr *ServerRoom) ItemChanged(item *models.PlaylistItem) {
	sr.broadcast(models.Event{Type: models.EventPlaylistItemChanged, Item: item.Clone()})
	if item.ID == sr.room.Settings.PlaylistItemID && !item.Expired {
		sr.enforceItemRules(item)
	}
}

func (sr *ServerRoom) ItemRemoved(itemID int64) {
	sr.broadcast(models.Event{Type: models.EventPlaylistItemRemoved, ItemID: itemID})
}

// enforceItemRules drops user mods and styles the current item no longer permits.
func (sr *ServerRoom) enforceItemRules(item *models.PlaylistItem) {
	if item == nil {
		return
	}
	for _, u := range sr.room.Users {
		kept := u.Mods[:0:0]
		for _, mod := range u.Mods {
			if item.Allows(mod) {
				kept = append(kept, mod)
			}
		}
		if len(kept) != len(u.Mods) {
			u.Mods = kept
			sr.broadcast(models.Event{Type: models.EventUserModsChanged, UserID: u.UserID, Mods: kept})
		}

		if !item.Freestyle && (u.BeatmapID != nil || u.RulesetID != nil) {
			u.BeatmapID = nil
			u.RulesetID = nil
			sr.broadcast(models.Event{Type: models.EventUserStyleChanged, UserID: u.UserID, User: cloneUser(u)})
		}
	}
}

func cloneUser(u *models.RoomUser) *models.RoomUser {
	cp := *u
	cp.Mods = append([]models.Mod(nil), u.Mods...)
	return &cp
}

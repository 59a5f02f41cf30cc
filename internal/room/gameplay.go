// internal/room/gameplay.go
package room

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/matchroom/internal/countdown"
	"github.com/jason-s-yu/matchroom/internal/models"
)

// ChangeState applies a client-requested user state change.
func (m *Manager) ChangeState(ctx context.Context, userID int64, state models.UserState) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if user.State == state {
			return nil
		}
		if err := sr.validateStateChange(user, state); err != nil {
			return err
		}
		sr.setUserState(user, state)
		sr.updateRoomState(ctx)
		sr.updateAutoStart()
		return nil
	})
}

func (sr *ServerRoom) validateStateChange(user *models.RoomUser, state models.UserState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown state %q", models.ErrInvalidStateChange, state)
	}
	if state.IsServerReserved() {
		return fmt.Errorf("%w: %s is set by the server", models.ErrInvalidStateChange, state)
	}

	from := user.State
	illegal := func() error {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidStateChange, from, state)
	}
	switch state {
	case models.UserIdle:
		// Mid-match, players leave through AbortGameplay or wait for results.
		if sr.room.State != models.RoomOpen && inGameplayGroup(from) {
			return illegal()
		}
	case models.UserReady:
		if from != models.UserIdle || sr.room.State != models.RoomOpen {
			return illegal()
		}
	case models.UserLoaded:
		if from != models.UserWaitingForLoad {
			return illegal()
		}
	case models.UserReadyForGameplay:
		if from != models.UserLoaded {
			return illegal()
		}
	case models.UserFinishedPlay:
		if from != models.UserPlaying {
			return illegal()
		}
	case models.UserSpectating:
		if from != models.UserIdle && from != models.UserReady {
			return illegal()
		}
	}
	return nil
}

// StartMatch moves the room into loading on the host's request.
func (m *Manager) StartMatch(ctx context.Context, userID int64) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if !sr.isHost(userID) {
			return models.ErrNotHost
		}
		return sr.startMatch(ctx, false)
	})
}

// AbortGameplay takes the user out of the running match.
func (m *Manager) AbortGameplay(ctx context.Context, userID int64) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if !user.State.IsGameplayState() {
			return fmt.Errorf("%w: not in gameplay", models.ErrInvalidStateChange)
		}
		sr.setUserState(user, models.UserIdle)
		sr.updateRoomState(ctx)
		return nil
	})
}

// AbortMatch ends the running match for everyone. Host only.
func (m *Manager) AbortMatch(ctx context.Context, userID int64) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if !sr.isHost(userID) {
			return models.ErrNotHost
		}
		if sr.room.State == models.RoomOpen {
			return fmt.Errorf("%w: no match in progress", models.ErrInvalidState)
		}

		sr.broadcastGameplay(models.Event{Type: models.EventGameplayAborted, Reason: "aborted by host"})
		for _, u := range sr.room.Users {
			if inGameplayGroup(u.State) {
				sr.setUserState(u, models.UserIdle)
			}
		}
		sr.countdowns.StopKind(countdown.KindForceGameplayStart)
		sr.setRoomState(models.RoomOpen)
		sr.logEvent(ctx, models.GameAborted, userID)
		sr.finishCurrentItem(ctx)
		return nil
	})
}

// startMatch sends everyone ready, or idle with the beatmap, into loading. When
// started by a countdown the host need not be ready, only someone.
func (sr *ServerRoom) startMatch(ctx context.Context, byCountdown bool) error {
	room := sr.room
	if room.State != models.RoomOpen {
		return fmt.Errorf("%w: match already in progress", models.ErrInvalidState)
	}

	ready := room.UsersInState(models.UserReady)
	if byCountdown {
		if len(ready) == 0 {
			return fmt.Errorf("%w: nobody is ready", models.ErrInvalidState)
		}
	} else {
		if host := room.Host(); host == nil || host.State != models.UserReady {
			return fmt.Errorf("%w: host is not ready", models.ErrInvalidState)
		}
		if len(ready) < 2 {
			return fmt.Errorf("%w: nobody else is ready", models.ErrInvalidState)
		}
	}

	item := sr.queue.Current()
	if item == nil || item.Expired {
		return fmt.Errorf("%w: no playlist item to play", models.ErrInvalidState)
	}

	sr.countdowns.StopKind(countdown.KindMatchStart)

	var loading []*models.RoomUser
	for _, u := range room.Users {
		if u.State == models.UserReady || (u.State == models.UserIdle && u.HasBeatmap()) {
			loading = append(loading, u)
		}
	}
	for _, u := range loading {
		sr.setUserState(u, models.UserWaitingForLoad)
		sr.mgr.deps.Hub.AddToGameplay(room.ID, u.UserID)
	}
	sr.setRoomState(models.RoomWaitingForLoad)
	sr.broadcastGameplay(models.Event{Type: models.EventLoadRequested, Item: item.Clone()})

	sr.countdowns.Start(countdown.KindForceGameplayStart, sr.mgr.cfg.ForceStartTimeout, true, sr.forceGameplayStart)
	sr.logger.WithField("players", len(loading)).Info("Match loading.")
	return nil
}

// forceGameplayStart gives up on players that have not finished loading.
func (sr *ServerRoom) forceGameplayStart(ctx context.Context) error {
	if sr.room.State != models.RoomWaitingForLoad {
		return nil
	}
	for _, u := range sr.room.UsersInState(models.UserWaitingForLoad, models.UserLoaded) {
		sr.mgr.deps.Hub.SendToUser(u.UserID, models.Event{
			Type:   models.EventGameplayAborted,
			RoomID: sr.room.ID,
			UserID: u.UserID,
			Reason: "took too long to load",
		})
		sr.setUserState(u, models.UserIdle)
	}
	sr.updateRoomState(ctx)
	return nil
}

// updateRoomState advances the room once every participant has reached the next step.
func (sr *ServerRoom) updateRoomState(ctx context.Context) {
	room := sr.room
	switch room.State {
	case models.RoomWaitingForLoad:
		if len(room.UsersInState(models.UserWaitingForLoad, models.UserLoaded)) > 0 {
			return
		}
		if len(room.UsersInState(models.UserReadyForGameplay)) > 0 {
			sr.startGameplay(ctx)
			return
		}
		// Everyone dropped out before the match began.
		sr.countdowns.StopKind(countdown.KindForceGameplayStart)
		sr.setRoomState(models.RoomOpen)
		sr.logger.Info("Match cancelled during loading.")

	case models.RoomPlaying:
		if len(room.UsersInState(models.UserPlaying)) > 0 {
			return
		}
		sr.finishGameplay(ctx)
	}
}

func (sr *ServerRoom) startGameplay(ctx context.Context) {
	sr.countdowns.StopKind(countdown.KindForceGameplayStart)
	for _, u := range sr.room.UsersInState(models.UserReadyForGameplay) {
		sr.setUserState(u, models.UserPlaying)
	}
	sr.setRoomState(models.RoomPlaying)
	sr.broadcastGameplay(models.Event{Type: models.EventGameplayStarted})
	sr.logEvent(ctx, models.GameStarted, sr.room.HostID)
}

func (sr *ServerRoom) finishGameplay(ctx context.Context) {
	finished := sr.room.UsersInState(models.UserFinishedPlay)
	for _, u := range finished {
		sr.setUserState(u, models.UserResults)
	}
	sr.broadcastGameplay(models.Event{Type: models.EventResultsReady})
	for _, u := range finished {
		sr.mgr.deps.Hub.RemoveFromGameplay(sr.room.ID, u.UserID)
	}
	sr.setRoomState(models.RoomOpen)

	if len(finished) > 0 {
		sr.logEvent(ctx, models.GameCompleted, sr.room.HostID)
	} else {
		sr.logEvent(ctx, models.GameAborted, sr.room.HostID)
	}
	sr.finishCurrentItem(ctx)
}

func (sr *ServerRoom) finishCurrentItem(ctx context.Context) {
	if err := sr.queue.FinishCurrent(ctx, sr.countdowns.Now()); err != nil {
		sr.logger.Errorf("Failed to finish playlist item: %v", err)
	}
}

// updateAutoStart keeps the protected match start countdown in line with the auto
// start setting and whether anyone is ready.
func (sr *ServerRoom) updateAutoStart() {
	room := sr.room
	if room.Settings.AutoStartDuration <= 0 {
		return
	}
	existing := sr.countdowns.Find(countdown.KindMatchStart)
	anyoneReady := room.State == models.RoomOpen && len(room.UsersInState(models.UserReady)) > 0

	switch {
	case anyoneReady && existing == nil:
		sr.countdowns.Start(countdown.KindMatchStart, room.Settings.AutoStartDuration, true, sr.autoStart)
	case !anyoneReady && existing != nil && existing.Protected:
		sr.countdowns.Stop(existing)
	}
}

func (sr *ServerRoom) autoStart(ctx context.Context) error {
	return sr.startMatch(ctx, true)
}

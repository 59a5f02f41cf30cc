// internal/room/host.go
package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/jason-s-yu/matchroom/internal/auth"
	"github.com/jason-s-yu/matchroom/internal/countdown"
	"github.com/jason-s-yu/matchroom/internal/match"
	"github.com/jason-s-yu/matchroom/internal/models"
	log "github.com/sirupsen/logrus"
)

// ChangeSettings replaces the room settings. The current playlist item is chosen by
// the queue and cannot be set here. An empty password removes the password.
func (m *Manager) ChangeSettings(ctx context.Context, userID int64, settings models.RoomSettings) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if !sr.isHost(userID) {
			return models.ErrNotHost
		}
		room := sr.room
		if room.State != models.RoomOpen {
			return fmt.Errorf("%w: settings are locked during a match", models.ErrInvalidState)
		}
		if err := validateSettings(&settings); err != nil {
			return err
		}

		hash := ""
		if settings.Password != "" {
			var err error
			if hash, err = auth.HashRoomPassword(settings.Password); err != nil {
				return fmt.Errorf("hash room password: %w", err)
			}
		}

		prev := room.Settings
		prevHash := room.PasswordHash
		next := settings
		next.Password = ""
		next.PlaylistItemID = prev.PlaylistItemID

		room.Settings = next
		room.PasswordHash = hash
		if err := m.deps.Store.UpdateSettings(ctx, room); err != nil {
			room.Settings = prev
			room.PasswordHash = prevHash
			return fmt.Errorf("update settings: %w", err)
		}

		if next.MatchType != prev.MatchType {
			c, err := match.Install(next.MatchType, sr)
			if err != nil {
				return err
			}
			sr.controller = c
		}

		for _, u := range room.UsersInState(models.UserReady) {
			sr.setUserState(u, models.UserIdle)
		}
		sr.settingsChanged()

		if next.QueueMode != prev.QueueMode {
			if err := sr.queue.ChangeMode(next.QueueMode); err != nil {
				return err
			}
		}
		if next.AutoStartDuration != prev.AutoStartDuration {
			if cd := sr.countdowns.Find(countdown.KindMatchStart); cd != nil && cd.Protected {
				sr.countdowns.Stop(cd)
			}
		}
		sr.updateAutoStart()

		sr.logger.WithFields(log.Fields{"match_type": next.MatchType, "queue_mode": sr.queue.Mode()}).Info("Room settings changed.")
		return nil
	})
}

func validateSettings(s *models.RoomSettings) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("%w: room name is required", models.ErrInvalidState)
	}
	if !s.MatchType.Valid() {
		return fmt.Errorf("%w: unknown match type %q", models.ErrInvalidState, s.MatchType)
	}
	if !s.QueueMode.Valid() {
		return fmt.Errorf("%w: unknown queue mode %q", models.ErrInvalidState, s.QueueMode)
	}
	if s.AutoStartDuration < 0 {
		return fmt.Errorf("%w: negative auto start duration", models.ErrInvalidState)
	}
	return nil
}

// TransferHost hands the host role to another member.
func (m *Manager) TransferHost(ctx context.Context, userID, targetID int64) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		if !sr.isHost(userID) {
			return models.ErrNotHost
		}
		target := sr.room.FindUser(targetID)
		if target == nil {
			return models.ErrUserNotInRoom
		}
		if targetID == userID {
			return nil
		}
		sr.setHost(ctx, target)
		return nil
	})
}

func (sr *ServerRoom) setHost(ctx context.Context, user *models.RoomUser) {
	sr.room.HostID = user.UserID
	sr.broadcast(models.Event{Type: models.EventHostChanged, UserID: user.UserID})
	sr.logEvent(ctx, models.HostChanged, user.UserID)
}

// SendMatchRequest handles countdown requests itself and passes everything else to
// the match controller.
func (m *Manager) SendMatchRequest(ctx context.Context, userID int64, req models.MatchRequest) error {
	return m.withRoom(ctx, userID, func(sr *ServerRoom, user *models.RoomUser, _ *roomLease) error {
		switch req.Type {
		case models.RequestStartMatchCountdown:
			if !sr.isHost(userID) {
				return models.ErrNotHost
			}
			if sr.room.State != models.RoomOpen {
				return fmt.Errorf("%w: match already in progress", models.ErrInvalidState)
			}
			if req.Duration <= 0 {
				return fmt.Errorf("%w: countdown duration must be positive", models.ErrInvalidState)
			}
			if cd := sr.countdowns.Find(countdown.KindMatchStart); cd != nil && cd.Protected {
				return fmt.Errorf("%w: auto start countdown is running", models.ErrInvalidState)
			}
			sr.countdowns.Start(countdown.KindMatchStart, req.Duration, false, sr.autoStart)
			return nil

		case models.RequestStopCountdown:
			if !sr.isHost(userID) {
				return models.ErrNotHost
			}
			cd := sr.countdowns.Get(req.CountdownID)
			if cd == nil {
				return fmt.Errorf("%w: countdown %d is not running", models.ErrInvalidState, req.CountdownID)
			}
			if cd.Protected {
				return fmt.Errorf("%w: countdown %d cannot be stopped", models.ErrInvalidState, req.CountdownID)
			}
			sr.countdowns.Stop(cd)
			return nil
		}
		return sr.controller.OnRequest(user, req)
	})
}

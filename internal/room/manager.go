// internal/room/manager.go
package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/matchroom/internal/auth"
	"github.com/jason-s-yu/matchroom/internal/countdown"
	"github.com/jason-s-yu/matchroom/internal/entity"
	"github.com/jason-s-yu/matchroom/internal/models"
	log "github.com/sirupsen/logrus"
)

// session records which room a user occupies. It lives in the user store so a user
// can be in at most one room.
type session struct {
	roomID int64
}

type roomLease = entity.Lease[int64, *ServerRoom]

// Manager owns every room and exposes the operations connections invoke.
//
// Leases are always taken user first, then room. Background flows (countdowns) only
// ever take the room lease.
type Manager struct {
	rooms    *entity.Store[int64, *ServerRoom]
	sessions *entity.Store[int64, *session]

	deps   Deps
	cfg    Config
	logger *log.Entry
}

// NewManager builds a manager with empty stores.
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Clock == nil {
		deps.Clock = countdown.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = log.NewEntry(log.StandardLogger())
	}
	if cfg.ForceStartTimeout <= 0 {
		cfg.ForceStartTimeout = DefaultForceStartTimeout
	}
	return &Manager{
		rooms: entity.NewStore("rooms",
			entity.WithTimeout[int64, *ServerRoom](cfg.LeaseTimeout),
			entity.WithSnapshot[int64, *ServerRoom](func(sr *ServerRoom) *ServerRoom {
				return &ServerRoom{room: sr.snapshot()}
			}),
		),
		sessions: entity.NewStore("sessions",
			entity.WithTimeout[int64, *session](cfg.LeaseTimeout),
		),
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
	}
}

// Rooms returns a copy of every open room as of its last completed operation.
func (m *Manager) Rooms() []*models.Room {
	srs := m.rooms.Snapshot()
	out := make([]*models.Room, 0, len(srs))
	for _, sr := range srs {
		out = append(out, sr.room)
	}
	return out
}

// Shutdown disarms every room's countdowns and forgets all rooms and sessions.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, id := range m.rooms.Keys() {
		l, err := m.rooms.Acquire(ctx, id, false)
		if err != nil {
			continue
		}
		if sr, ok, _ := l.Item(); ok {
			sr.shutdown()
		}
		l.Release()
	}
	m.rooms.Clear()
	m.sessions.Clear()
}

// dispatcher routes countdown completions for roomID through the room lease.
func (m *Manager) dispatcher(roomID int64) countdown.Dispatcher {
	return func(ctx context.Context, fn func(*countdown.Engine) error) error {
		l, err := m.rooms.Acquire(ctx, roomID, false)
		if errors.Is(err, entity.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		defer l.Release()

		sr, ok, err := l.Item()
		if err != nil || !ok {
			return err
		}
		return fn(sr.countdowns)
	}
}

// withRoom runs fn with the user's and their room's leases held.
func (m *Manager) withRoom(ctx context.Context, userID int64, fn func(sr *ServerRoom, user *models.RoomUser, rl *roomLease) error) error {
	ul, err := m.sessions.Acquire(ctx, userID, false)
	if errors.Is(err, entity.ErrNotFound) {
		return models.ErrNotJoined
	}
	if err != nil {
		return err
	}
	defer ul.Release()

	sess, ok, err := ul.Item()
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotJoined
	}

	rl, err := m.rooms.Acquire(ctx, sess.roomID, false)
	if errors.Is(err, entity.ErrNotFound) {
		// The room went away underneath the session, e.g. the user was kicked.
		_ = ul.Destroy()
		return models.ErrNotJoined
	}
	if err != nil {
		return err
	}
	defer rl.Release()

	sr, ok, err := rl.Item()
	if err != nil {
		return err
	}
	var user *models.RoomUser
	if ok {
		user = sr.room.FindUser(userID)
	}
	if user == nil {
		_ = ul.Destroy()
		return models.ErrNotJoined
	}
	return fn(sr, user, rl)
}

// JoinRoom puts userID into roomID, opening the room if this is the first join.
// Any failure leaves no trace of the attempt in either store.
func (m *Manager) JoinRoom(ctx context.Context, userID, roomID int64, password string) (*models.Room, error) {
	logger := m.logger.WithFields(log.Fields{"room_id": roomID, "user_id": userID})

	ul, err := m.sessions.Acquire(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	defer ul.Release()

	if sess, ok, err := ul.Item(); err != nil {
		return nil, err
	} else if ok {
		member, err := m.isMember(ctx, sess.roomID, userID)
		if err != nil {
			return nil, err
		}
		if member {
			return nil, models.ErrAlreadyInRoom
		}
		// Left over from a kick whose cleanup did not complete; replaced below.
	}

	snapshot, err := m.join(ctx, userID, roomID, password)
	if err != nil {
		_ = ul.Destroy()
		logger.Debugf("Join failed: %v", err)
		return nil, err
	}
	if err := ul.Set(&session{roomID: roomID}); err != nil {
		return nil, err
	}
	logger.Info("User joined room.")
	return snapshot, nil
}

func (m *Manager) join(ctx context.Context, userID, roomID int64, password string) (*models.Room, error) {
	restricted, err := m.deps.Users.IsRestricted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check restriction: %w", err)
	}
	if restricted {
		return nil, models.ErrRestricted
	}

	rl, err := m.rooms.Acquire(ctx, roomID, true)
	if err != nil {
		return nil, err
	}
	defer rl.Release()

	sr, ok, err := rl.Item()
	if err != nil {
		return nil, err
	}
	created := !ok
	if created {
		sr, err = m.openRoom(ctx, roomID, userID)
		if err != nil {
			_ = rl.Destroy()
			return nil, err
		}
	}

	rollback := func() {
		if created {
			sr.shutdown()
			_ = rl.Destroy()
		}
	}

	if sr.room.FindUser(userID) != nil {
		return nil, models.ErrAlreadyInRoom
	}
	if err := m.admit(ctx, sr, userID, password, created); err != nil {
		rollback()
		return nil, err
	}
	if created {
		if err := rl.Set(sr); err != nil {
			rollback()
			return nil, err
		}
		sr.logEvent(ctx, models.RoomCreated, userID)
	}

	user := &models.RoomUser{
		UserID:              userID,
		State:               models.UserIdle,
		BeatmapAvailability: models.BeatmapAvailability{State: models.DownloadUnknown},
	}
	sr.room.Users = append(sr.room.Users, user)

	// Members hear about the user before any match state that references them.
	sr.broadcast(models.Event{Type: models.EventUserJoined, UserID: userID, User: cloneUser(user)})
	m.deps.Hub.AddToRoom(roomID, userID)
	sr.controller.OnUserJoined(user)
	sr.logEvent(ctx, models.PlayerJoined, userID)

	return sr.snapshot(), nil
}

func (m *Manager) isMember(ctx context.Context, roomID, userID int64) (bool, error) {
	rl, err := m.rooms.Acquire(ctx, roomID, false)
	if errors.Is(err, entity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer rl.Release()

	sr, ok, err := rl.Item()
	if err != nil {
		return false, err
	}
	return ok && sr.room.FindUser(userID) != nil, nil
}

// openRoom loads a stored room definition and builds its live state with userID as host.
func (m *Manager) openRoom(ctx context.Context, roomID, userID int64) (*ServerRoom, error) {
	room, err := m.deps.Store.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("%w: room %d", entity.ErrNotFound, roomID)
	}
	room.ID = roomID
	room.HostID = userID
	room.Users = nil

	sr, err := newServerRoom(m, room)
	if err != nil {
		return nil, err
	}
	sr.logger.WithField("user_id", userID).Info("Room opened.")
	return sr, nil
}

// admit runs the checks and persistence a join needs before the user is added.
func (m *Manager) admit(ctx context.Context, sr *ServerRoom, userID int64, password string, created bool) error {
	room := sr.room
	if room.EndsAt != nil && !m.deps.Clock.Now().Before(*room.EndsAt) {
		return models.ErrRoomEnded
	}
	if room.HasPassword() {
		match, err := auth.ComparePasswordAndHash(password, room.PasswordHash)
		if err != nil {
			return fmt.Errorf("verify room password: %w", err)
		}
		if !match {
			return models.ErrInvalidPassword
		}
	}
	if created {
		if err := m.deps.Store.MarkRoomActive(ctx, room); err != nil {
			return fmt.Errorf("mark room active: %w", err)
		}
	}
	if err := m.deps.Store.AddParticipant(ctx, room.ID, userID); err != nil {
		if created {
			if endErr := m.deps.Store.EndRoom(ctx, room.ID); endErr != nil {
				sr.logger.Warnf("Failed to end room after join rollback: %v", endErr)
			}
		}
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// LeaveRoom removes userID from their room.
func (m *Manager) LeaveRoom(ctx context.Context, userID int64) error {
	ul, err := m.sessions.Acquire(ctx, userID, false)
	if errors.Is(err, entity.ErrNotFound) {
		return models.ErrNotJoined
	}
	if err != nil {
		return err
	}
	defer ul.Release()

	sess, ok, err := ul.Item()
	if err != nil {
		return err
	}
	if !ok {
		_ = ul.Destroy()
		return models.ErrNotJoined
	}

	rl, err := m.rooms.Acquire(ctx, sess.roomID, false)
	if err == nil {
		defer rl.Release()
		if sr, ok, _ := rl.Item(); ok {
			if user := sr.room.FindUser(userID); user != nil {
				m.removeUser(ctx, sr, rl, user, false)
			}
		}
	} else if !errors.Is(err, entity.ErrNotFound) {
		return err
	}

	m.logger.WithFields(log.Fields{"room_id": sess.roomID, "user_id": userID}).Info("User left room.")
	return ul.Destroy()
}

// KickUser removes targetID from the host's room.
func (m *Manager) KickUser(ctx context.Context, hostID, targetID int64) error {
	var roomID int64
	err := m.withRoom(ctx, hostID, func(sr *ServerRoom, host *models.RoomUser, rl *roomLease) error {
		if !sr.isHost(hostID) {
			return models.ErrNotHost
		}
		if targetID == hostID {
			return fmt.Errorf("%w: cannot kick yourself", models.ErrInvalidState)
		}
		target := sr.room.FindUser(targetID)
		if target == nil {
			return models.ErrUserNotInRoom
		}
		roomID = sr.room.ID
		m.removeUser(ctx, sr, rl, target, true)
		return nil
	})
	if err != nil {
		return err
	}
	m.clearKickedSession(ctx, targetID, roomID)
	return nil
}

// clearKickedSession drops targetID's session for roomID once the kick has
// committed. The target may have rejoined in between, in which case the session
// belongs to the new membership and is kept.
func (m *Manager) clearKickedSession(ctx context.Context, targetID, roomID int64) {
	logger := m.logger.WithFields(log.Fields{"room_id": roomID, "user_id": targetID})

	ul, err := m.sessions.Acquire(ctx, targetID, false)
	if errors.Is(err, entity.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warnf("Failed to clear kicked user's session: %v", err)
		return
	}
	defer ul.Release()

	sess, ok, _ := ul.Item()
	if !ok || sess.roomID != roomID {
		return
	}
	member, err := m.isMember(ctx, roomID, targetID)
	if err != nil {
		logger.Warnf("Failed to check kicked user's membership: %v", err)
		return
	}
	if member {
		logger.Debug("Kicked user rejoined, keeping session.")
		return
	}
	_ = ul.Destroy()
}

// removeUser takes user out of the room, handing off host or disbanding as needed.
func (m *Manager) removeUser(ctx context.Context, sr *ServerRoom, rl *roomLease, user *models.RoomUser, kicked bool) {
	room := sr.room
	for i, u := range room.Users {
		if u == user {
			room.Users = append(room.Users[:i], room.Users[i+1:]...)
			break
		}
	}

	if err := m.deps.Store.RemoveParticipant(ctx, room.ID, user.UserID); err != nil {
		sr.logger.WithField("user_id", user.UserID).Warnf("Failed to remove participant: %v", err)
	}
	sr.controller.OnUserLeft(user)
	m.deps.Hub.RemoveFromGameplay(room.ID, user.UserID)

	if kicked {
		sr.broadcast(models.Event{Type: models.EventUserKicked, UserID: user.UserID, User: cloneUser(user)})
		sr.logEvent(ctx, models.PlayerKicked, user.UserID)
	} else {
		sr.broadcast(models.Event{Type: models.EventUserLeft, UserID: user.UserID, User: cloneUser(user)})
		sr.logEvent(ctx, models.PlayerLeft, user.UserID)
	}
	m.deps.Hub.RemoveFromRoom(room.ID, user.UserID)

	if len(room.Users) == 0 {
		sr.shutdown()
		if err := m.deps.Store.EndRoom(ctx, room.ID); err != nil {
			sr.logger.Warnf("Failed to end room: %v", err)
		}
		sr.logEvent(ctx, models.RoomDisbanded, user.UserID)
		_ = rl.Destroy()
		sr.logger.Info("Room disbanded.")
		return
	}

	if room.HostID == user.UserID {
		sr.setHost(ctx, room.Users[0])
	}
	sr.updateRoomState(ctx)
	sr.updateAutoStart()
}

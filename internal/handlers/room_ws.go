// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/matchroom/internal/middleware"
	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/jason-s-yu/matchroom/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const roomSubprotocol = "room"

// request is an inbound client message. Fields are used per Type.
type request struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`

	RoomID       int64                       `json:"room_id,omitempty"`
	Password     string                      `json:"password,omitempty"`
	State        models.UserState            `json:"state,omitempty"`
	Settings     *models.RoomSettings        `json:"settings,omitempty"`
	Availability *models.BeatmapAvailability `json:"availability,omitempty"`
	Mods         []models.Mod                `json:"mods,omitempty"`
	Item         *models.PlaylistItem        `json:"item,omitempty"`
	ItemID       int64                       `json:"item_id,omitempty"`
	BeatmapID    *int64                      `json:"beatmap_id,omitempty"`
	RulesetID    *int                        `json:"ruleset_id,omitempty"`
	Request      *models.MatchRequest        `json:"request,omitempty"`
	UserID       int64                       `json:"user_id,omitempty"`
}

// response answers one request on the connection that sent it.
type response struct {
	Type    string       `json:"type"`
	ID      int64        `json:"id"`
	OK      bool         `json:"ok"`
	Room    *models.Room `json:"room,omitempty"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// RoomWSHandler upgrades authenticated connections and feeds their requests to mgr.
// Closing the connection leaves whatever room the user was in.
func RoomWSHandler(logger *logrus.Logger, mgr *room.Manager, hub *Hub, perSecond int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{roomSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != roomSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		// Auth failures are reported as a close code, after the upgrade.
		userID, err := authenticate(r)
		if err != nil {
			c.Close(InvalidAuthTokenError, "invalid token")
			return
		}

		cl := newClient(userID)
		hub.register(cl)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		go func() {
			select {
			case <-cl.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		entry := logger.WithFields(logrus.Fields{"user_id": userID, "conn_id": cl.id})
		go writePump(ctx, c, cl, entry)
		readErr := readPump(ctx, c, cl, mgr, rate.NewLimiter(rate.Limit(perSecond), perSecond), entry)

		cancel()
		cl.close()
		if hub.unregister(cl) {
			// A newer connection for the same user keeps the room membership.
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := mgr.LeaveRoom(leaveCtx, userID); err != nil && !errors.Is(err, models.ErrNotJoined) {
				entry.Warnf("Failed to leave room on disconnect: %v", err)
			}
			leaveCancel()
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump handles inbound messages until the connection closes. Requests are
// served one at a time in arrival order.
func readPump(ctx context.Context, c *websocket.Conn, cl *client, mgr *room.Manager, limiter *rate.Limiter, logger *logrus.Entry) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("Ignoring non-text message type %d.", typ)
			continue
		}

		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			cl.send(errorResponse(0, fmt.Errorf("%w: invalid json", errBadRequest)))
			continue
		}
		if !limiter.Allow() {
			cl.send(response{Type: "error", ID: req.ID, Code: CodeRateLimited, Message: "too many requests"})
			continue
		}

		snap, err := dispatch(ctx, mgr, cl.userID, req)
		if err != nil {
			if errorCode(err) == CodeInternal {
				logger.WithField("request", req.Type).Errorf("Request failed: %v", err)
			}
			cl.send(errorResponse(req.ID, err))
			continue
		}
		cl.send(response{Type: "response", ID: req.ID, OK: true, Room: snap})
	}
}

// dispatch runs one request against the manager. Only join returns a room.
func dispatch(ctx context.Context, mgr *room.Manager, userID int64, req request) (*models.Room, error) {
	switch req.Type {
	case "join_room":
		return mgr.JoinRoom(ctx, userID, req.RoomID, req.Password)
	case "leave_room":
		return nil, mgr.LeaveRoom(ctx, userID)
	case "change_state":
		return nil, mgr.ChangeState(ctx, userID, req.State)
	case "change_settings":
		if req.Settings == nil {
			return nil, fmt.Errorf("%w: settings required", errBadRequest)
		}
		return nil, mgr.ChangeSettings(ctx, userID, *req.Settings)
	case "start_match":
		return nil, mgr.StartMatch(ctx, userID)
	case "abort_gameplay":
		return nil, mgr.AbortGameplay(ctx, userID)
	case "abort_match":
		return nil, mgr.AbortMatch(ctx, userID)
	case "change_beatmap_availability":
		if req.Availability == nil {
			return nil, fmt.Errorf("%w: availability required", errBadRequest)
		}
		return nil, mgr.ChangeBeatmapAvailability(ctx, userID, *req.Availability)
	case "change_user_mods":
		return nil, mgr.ChangeUserMods(ctx, userID, req.Mods)
	case "add_playlist_item":
		if req.Item == nil {
			return nil, fmt.Errorf("%w: item required", errBadRequest)
		}
		return nil, mgr.AddPlaylistItem(ctx, userID, *req.Item)
	case "edit_playlist_item":
		if req.Item == nil {
			return nil, fmt.Errorf("%w: item required", errBadRequest)
		}
		return nil, mgr.EditPlaylistItem(ctx, userID, *req.Item)
	case "remove_playlist_item":
		return nil, mgr.RemovePlaylistItem(ctx, userID, req.ItemID)
	case "change_user_style":
		return nil, mgr.ChangeUserStyle(ctx, userID, req.BeatmapID, req.RulesetID)
	case "send_match_request":
		if req.Request == nil {
			return nil, fmt.Errorf("%w: request required", errBadRequest)
		}
		return nil, mgr.SendMatchRequest(ctx, userID, *req.Request)
	case "transfer_host":
		return nil, mgr.TransferHost(ctx, userID, req.UserID)
	case "kick_user":
		return nil, mgr.KickUser(ctx, userID, req.UserID)
	}
	return nil, fmt.Errorf("%w: unknown request type %q", errBadRequest, req.Type)
}

func errorResponse(id int64, err error) response {
	return response{Type: "error", ID: id, Code: errorCode(err), Message: clientMessage(err)}
}

// writePump delivers queued messages and keeps the connection alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, cl *client, logger *logrus.Entry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer cl.close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.done:
			return
		case msg := <-cl.out:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("Failed to marshal outgoing message: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write to websocket: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Failed to send ping: %v. Assuming disconnect.", err)
				return
			}
		}
	}
}

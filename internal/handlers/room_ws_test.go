package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/matchroom/internal/auth"
	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/jason-s-yu/matchroom/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoomID = 1

// memoryStore serves one room definition and accepts every write.
type memoryStore struct {
	mu  sync.Mutex
	def *models.Room
}

func (s *memoryStore) LoadRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID != s.def.ID {
		return nil, nil
	}
	return s.def.Clone(), nil
}

func (s *memoryStore) MarkRoomActive(ctx context.Context, room *models.Room) error { return nil }
func (s *memoryStore) UpdateSettings(ctx context.Context, room *models.Room) error { return nil }
func (s *memoryStore) EndRoom(ctx context.Context, roomID int64) error             { return nil }

func (s *memoryStore) AddParticipant(ctx context.Context, roomID, userID int64) error    { return nil }
func (s *memoryStore) RemoveParticipant(ctx context.Context, roomID, userID int64) error { return nil }

func (s *memoryStore) InsertItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error {
	return nil
}

func (s *memoryStore) UpdateItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error {
	return nil
}

func (s *memoryStore) DeleteItem(ctx context.Context, roomID int64, itemID int64) error { return nil }

type oneBeatmap struct{}

func (oneBeatmap) GetBeatmap(ctx context.Context, beatmapID int64) (*models.Beatmap, error) {
	if beatmapID != 100 {
		return nil, nil
	}
	return &models.Beatmap{ID: 100, SetID: 10, Checksum: "aaa"}, nil
}

type nobodyRestricted struct{}

func (nobodyRestricted) IsRestricted(ctx context.Context, userID int64) (bool, error) {
	return false, nil
}

type testServer struct {
	srv *httptest.Server
	mgr *room.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, auth.Init(time.Hour))

	logger, _ := test.NewNullLogger()
	hub := NewHub(logrus.NewEntry(logger))
	store := &memoryStore{def: &models.Room{
		ID: testRoomID,
		Settings: models.RoomSettings{
			Name:      "weekly",
			MatchType: models.MatchHeadToHead,
			QueueMode: models.QueueHostOnly,
		},
		Playlist: []*models.PlaylistItem{{ID: 1, OwnerID: 1, BeatmapID: 100, BeatmapChecksum: "aaa"}},
	}}
	mgr := room.NewManager(room.Deps{
		Store:    store,
		Beatmaps: oneBeatmap{},
		Users:    nobodyRestricted{},
		Hub:      hub,
		Logger:   logrus.NewEntry(logger),
	}, room.Config{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", RoomWSHandler(logger, mgr, hub, 100))
	mux.HandleFunc("/rooms", ListRoomsHandler(mgr))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		mgr.Shutdown(context.Background())
	})
	return &testServer{srv: srv, mgr: mgr}
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws", &websocket.DialOptions{
		Subprotocols: []string{roomSubprotocol},
		HTTPHeader:   http.Header{"Authorization": {"Bearer " + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func (ts *testServer) dialAs(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := auth.CreateJWT(userID)
	require.NoError(t, err)
	return ts.dial(t, token)
}

func send(t *testing.T, c *websocket.Conn, req map[string]any) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

// readUntil returns the first message for which match is true.
func readUntil(t *testing.T, c *websocket.Conn, match func(msg map[string]any) bool) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func reply(id int) func(map[string]any) bool {
	return func(msg map[string]any) bool {
		return (msg["type"] == "response" || msg["type"] == "error") && msg["id"] == float64(id)
	}
}

func event(typ models.EventType, userID int64) func(map[string]any) bool {
	return func(msg map[string]any) bool {
		return msg["type"] == string(typ) && msg["user_id"] == float64(userID)
	}
}

func TestJoinOverWebSocket(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dialAs(t, 1)

	send(t, host, map[string]any{"id": 1, "type": "join_room", "room_id": testRoomID})
	resp := readUntil(t, host, reply(1))
	assert.Equal(t, true, resp["ok"])
	snap := resp["room"].(map[string]any)
	assert.Equal(t, float64(1), snap["host_id"])
	assert.Equal(t, "weekly", snap["settings"].(map[string]any)["name"])

	guest := ts.dialAs(t, 2)
	send(t, guest, map[string]any{"id": 7, "type": "join_room", "room_id": testRoomID})
	assert.Equal(t, true, readUntil(t, guest, reply(7))["ok"])
	readUntil(t, host, event(models.EventUserJoined, 2))
}

func TestRequestErrorsCarryCodes(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dialAs(t, 1)
	guest := ts.dialAs(t, 2)

	send(t, guest, map[string]any{"id": 1, "type": "start_match"})
	assert.Equal(t, CodeNotJoined, readUntil(t, guest, reply(1))["code"])

	send(t, host, map[string]any{"id": 1, "type": "join_room", "room_id": testRoomID})
	readUntil(t, host, reply(1))
	send(t, guest, map[string]any{"id": 2, "type": "join_room", "room_id": testRoomID})
	readUntil(t, guest, reply(2))

	send(t, guest, map[string]any{"id": 3, "type": "start_match"})
	assert.Equal(t, CodeNotHost, readUntil(t, guest, reply(3))["code"])

	send(t, guest, map[string]any{"id": 4, "type": "join_room", "room_id": 99})
	assert.Equal(t, CodeAlreadyInRoom, readUntil(t, guest, reply(4))["code"])

	send(t, guest, map[string]any{"id": 5, "type": "teleport"})
	assert.Equal(t, CodeBadRequest, readUntil(t, guest, reply(5))["code"])

	send(t, guest, map[string]any{"id": 6, "type": "change_settings"})
	assert.Equal(t, CodeBadRequest, readUntil(t, guest, reply(6))["code"])
}

func TestDisconnectLeavesRoom(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dialAs(t, 1)
	guest := ts.dialAs(t, 2)

	send(t, host, map[string]any{"id": 1, "type": "join_room", "room_id": testRoomID})
	readUntil(t, host, reply(1))
	send(t, guest, map[string]any{"id": 1, "type": "join_room", "room_id": testRoomID})
	readUntil(t, guest, reply(1))

	require.NoError(t, guest.Close(websocket.StatusNormalClosure, "bye"))
	readUntil(t, host, event(models.EventUserLeft, 2))

	assert.Eventually(t, func() bool {
		rooms := ts.mgr.Rooms()
		return len(rooms) == 1 && len(rooms[0].Users) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidTokenClosesConnection(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t, "not-a-token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, InvalidAuthTokenError, websocket.CloseStatus(err))
}

func TestListRooms(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dialAs(t, 1)
	send(t, host, map[string]any{"id": 1, "type": "join_room", "room_id": testRoomID})
	readUntil(t, host, reply(1))

	token, err := auth.CreateJWT(1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	w := httptest.NewRecorder()
	ListRoomsHandler(ts.mgr)(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var rooms []roomSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(testRoomID), rooms[0].ID)
	assert.Equal(t, 1, rooms[0].Users)
	assert.False(t, rooms[0].HasPassword)
	require.NotNil(t, rooms[0].CurrentItem)
	assert.Equal(t, int64(100), rooms[0].CurrentItem.BeatmapID)

	w = httptest.NewRecorder()
	ListRoomsHandler(ts.mgr)(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	ListRoomsHandler(ts.mgr)(w, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestExtractCookieToken(t *testing.T) {
	assert.Equal(t, "abc", extractCookieToken("theme=dark; auth_token=abc; lang=en", "auth_token"))
	assert.Equal(t, "abc", extractCookieToken("auth_token=abc", "auth_token"))
	assert.Empty(t, extractCookieToken("theme=dark", "auth_token"))
}

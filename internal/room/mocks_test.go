package room

import (
	"context"
	"sync"

	"github.com/jason-s-yu/matchroom/internal/models"
)

// sentEvent is one event as delivered by the recording hub.
type sentEvent struct {
	group  string // "room", "gameplay" or "user"
	target int64  // room id, or user id for direct sends
	event  models.Event
}

// recordingHub implements Broadcaster and remembers everything sent.
type recordingHub struct {
	mu       sync.Mutex
	sent     []sentEvent
	members  map[int64]map[int64]bool
	gameplay map[int64]map[int64]bool
}

func newRecordingHub() *recordingHub {
	return &recordingHub{
		members:  make(map[int64]map[int64]bool),
		gameplay: make(map[int64]map[int64]bool),
	}
}

func (h *recordingHub) Broadcast(roomID int64, ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{group: "room", target: roomID, event: ev})
}

func (h *recordingHub) BroadcastGameplay(roomID int64, ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{group: "gameplay", target: roomID, event: ev})
}

func (h *recordingHub) SendToUser(userID int64, ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{group: "user", target: userID, event: ev})
}

func (h *recordingHub) AddToRoom(roomID, userID int64) {
	h.set(h.members, roomID, userID, true)
}

func (h *recordingHub) RemoveFromRoom(roomID, userID int64) {
	h.set(h.members, roomID, userID, false)
}

func (h *recordingHub) AddToGameplay(roomID, userID int64) {
	h.set(h.gameplay, roomID, userID, true)
}

func (h *recordingHub) RemoveFromGameplay(roomID, userID int64) {
	h.set(h.gameplay, roomID, userID, false)
}

func (h *recordingHub) set(groups map[int64]map[int64]bool, roomID, userID int64, in bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if groups[roomID] == nil {
		groups[roomID] = make(map[int64]bool)
	}
	if in {
		groups[roomID][userID] = true
	} else {
		delete(groups[roomID], userID)
	}
}

func (h *recordingHub) inGameplay(roomID int64) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []int64
	for id := range h.gameplay[roomID] {
		ids = append(ids, id)
	}
	return ids
}

func (h *recordingHub) isMember(roomID, userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.members[roomID][userID]
}

// events returns everything sent to group so far.
func (h *recordingHub) events(group string) []models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Event
	for _, s := range h.sent {
		if s.group == group {
			out = append(out, s.event)
		}
	}
	return out
}

func (h *recordingHub) types(group string) []models.EventType {
	var out []models.EventType
	for _, ev := range h.events(group) {
		out = append(out, ev.Type)
	}
	return out
}

// index returns the position of the first room event matching typ and userID, or -1.
func (h *recordingHub) index(typ models.EventType, userID int64) int {
	for i, ev := range h.events("room") {
		if ev.Type == typ && ev.UserID == userID {
			return i
		}
	}
	return -1
}

func (h *recordingHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = nil
}

// fakeStore is an in-memory RoomStore.
type fakeStore struct {
	mu           sync.Mutex
	definitions  map[int64]*models.Room
	active       map[int64]bool
	ended        map[int64]bool
	participants map[int64]map[int64]bool
	items        map[int64]int
	settings     map[int64]models.RoomSettings

	failAddParticipant error
	failUpdateSettings error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		definitions:  make(map[int64]*models.Room),
		active:       make(map[int64]bool),
		ended:        make(map[int64]bool),
		participants: make(map[int64]map[int64]bool),
		items:        make(map[int64]int),
		settings:     make(map[int64]models.RoomSettings),
	}
}

func (s *fakeStore) define(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[room.ID] = room
}

func (s *fakeStore) LoadRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[roomID]
	if !ok {
		return nil, nil
	}
	return def.Clone(), nil
}

func (s *fakeStore) MarkRoomActive(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[room.ID] = true
	delete(s.ended, room.ID)
	return nil
}

func (s *fakeStore) UpdateSettings(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateSettings != nil {
		return s.failUpdateSettings
	}
	s.settings[room.ID] = room.Settings
	return nil
}

func (s *fakeStore) EndRoom(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[roomID] = true
	delete(s.active, roomID)
	return nil
}

func (s *fakeStore) AddParticipant(ctx context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAddParticipant != nil {
		return s.failAddParticipant
	}
	if s.participants[roomID] == nil {
		s.participants[roomID] = make(map[int64]bool)
	}
	s.participants[roomID][userID] = true
	return nil
}

func (s *fakeStore) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants[roomID], userID)
	return nil
}

func (s *fakeStore) InsertItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[roomID]++
	return nil
}

func (s *fakeStore) UpdateItem(ctx context.Context, roomID int64, item *models.PlaylistItem) error {
	return nil
}

func (s *fakeStore) DeleteItem(ctx context.Context, roomID int64, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[roomID]--
	return nil
}

func (s *fakeStore) participantCount(roomID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants[roomID])
}

func (s *fakeStore) isActive(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[roomID]
}

func (s *fakeStore) isEnded(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended[roomID]
}

// fakeBeatmaps is a fixed BeatmapLookup.
type fakeBeatmaps map[int64]*models.Beatmap

func (b fakeBeatmaps) GetBeatmap(ctx context.Context, beatmapID int64) (*models.Beatmap, error) {
	bm, ok := b[beatmapID]
	if !ok {
		return nil, nil
	}
	cp := *bm
	return &cp, nil
}

// fakeUsers is a UserLookup with a fixed set of restricted users.
type fakeUsers struct {
	mu         sync.Mutex
	restricted map[int64]bool
}

func (u *fakeUsers) IsRestricted(ctx context.Context, userID int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.restricted[userID], nil
}

// fakeEvents records the room event log.
type fakeEvents struct {
	mu     sync.Mutex
	logged []models.RoomEvent
}

func (e *fakeEvents) LogRoomEvent(ctx context.Context, ev models.RoomEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logged = append(e.logged, ev)
	return nil
}

func (e *fakeEvents) types() []models.RoomEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.RoomEventType
	for _, ev := range e.logged {
		out = append(out, ev.Type)
	}
	return out
}

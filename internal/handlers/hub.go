// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/matchroom/internal/models"
	log "github.com/sirupsen/logrus"
)

// outBuffer is how many messages may queue for a connection before it is dropped.
const outBuffer = 64

// client is one websocket connection. A user has at most one registered client.
type client struct {
	id     uuid.UUID
	userID int64
	out    chan any
	done   chan struct{}
	once   sync.Once
}

func newClient(userID int64) *client {
	return &client{
		id:     uuid.New(),
		userID: userID,
		out:    make(chan any, outBuffer),
		done:   make(chan struct{}),
	}
}

// close signals the connection's pumps to stop. Safe to call more than once.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// send queues msg without blocking. A client that cannot keep up is closed so it
// reconnects and resynchronises.
func (c *client) send(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		c.close()
		return false
	}
}

// Hub tracks connections and the room and gameplay groups they belong to.
// It implements room.Broadcaster.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int64]*client
	rooms    map[int64]map[int64]struct{}
	gameplay map[int64]map[int64]struct{}

	logger *log.Entry
}

// NewHub returns an empty hub.
func NewHub(logger *log.Entry) *Hub {
	return &Hub{
		clients:  make(map[int64]*client),
		rooms:    make(map[int64]map[int64]struct{}),
		gameplay: make(map[int64]map[int64]struct{}),
		logger:   logger,
	}
}

// register makes c the user's connection, closing any previous one.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if prev != nil {
		h.logger.WithField("user_id", c.userID).Info("Replacing existing connection.")
		prev.close()
	}
}

// unregister forgets c and reports whether it was still the user's connection.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] != c {
		return false
	}
	delete(h.clients, c.userID)
	return true
}

// Connected reports whether userID has a registered connection.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) Broadcast(roomID int64, ev models.Event) {
	h.sendGroup(h.rooms, roomID, ev)
}

func (h *Hub) BroadcastGameplay(roomID int64, ev models.Event) {
	h.sendGroup(h.gameplay, roomID, ev)
}

func (h *Hub) SendToUser(userID int64, ev models.Event) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c != nil && !c.send(ev) {
		h.logger.WithField("user_id", userID).Warn("Dropped event for slow connection.")
	}
}

func (h *Hub) sendGroup(groups map[int64]map[int64]struct{}, roomID int64, ev models.Event) {
	h.mu.RLock()
	targets := make([]*client, 0, len(groups[roomID]))
	for userID := range groups[roomID] {
		if c := h.clients[userID]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.send(ev) {
			h.logger.WithFields(log.Fields{"room_id": roomID, "user_id": c.userID}).Warn("Dropped event for slow connection.")
		}
	}
}

func (h *Hub) AddToRoom(roomID, userID int64) {
	h.join(h.rooms, roomID, userID)
}

func (h *Hub) RemoveFromRoom(roomID, userID int64) {
	h.leave(h.rooms, roomID, userID)
}

func (h *Hub) AddToGameplay(roomID, userID int64) {
	h.join(h.gameplay, roomID, userID)
}

func (h *Hub) RemoveFromGameplay(roomID, userID int64) {
	h.leave(h.gameplay, roomID, userID)
}

func (h *Hub) join(groups map[int64]map[int64]struct{}, roomID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if groups[roomID] == nil {
		groups[roomID] = make(map[int64]struct{})
	}
	groups[roomID][userID] = struct{}{}
}

func (h *Hub) leave(groups map[int64]map[int64]struct{}, roomID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(groups[roomID], userID)
	if len(groups[roomID]) == 0 {
		delete(groups, roomID)
	}
}

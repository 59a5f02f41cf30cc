// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/jason-s-yu/matchroom/internal/models"
	"github.com/jason-s-yu/matchroom/internal/room"
)

// roomSummary is the public listing view of an open room.
type roomSummary struct {
	ID          int64                `json:"room_id"`
	Name        string               `json:"name"`
	State       models.RoomState     `json:"state"`
	HostID      int64                `json:"host_id"`
	Users       int                  `json:"users"`
	MatchType   models.MatchType     `json:"match_type"`
	QueueMode   models.QueueMode     `json:"queue_mode"`
	HasPassword bool                 `json:"has_password"`
	CurrentItem *models.PlaylistItem `json:"current_item,omitempty"`
}

// ListRoomsHandler returns every open room, ordered by id.
func ListRoomsHandler(mgr *room.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := authenticate(r); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		rooms := mgr.Rooms()
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

		out := make([]roomSummary, 0, len(rooms))
		for _, rm := range rooms {
			out = append(out, roomSummary{
				ID:          rm.ID,
				Name:        rm.Settings.Name,
				State:       rm.State,
				HostID:      rm.HostID,
				Users:       len(rm.Users),
				MatchType:   rm.Settings.MatchType,
				QueueMode:   rm.Settings.QueueMode,
				HasPassword: rm.HasPassword(),
				CurrentItem: rm.CurrentItem(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

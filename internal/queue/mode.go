// internal/queue/mode.go
package queue

import (
	"fmt"
	"sort"

	"github.com/jason-s-yu/matchroom/internal/models"
)

// Mode is the policy half of the queue: who may enqueue and which item plays next.
type Mode interface {
	Kind() models.QueueMode
	// AllowAdd returns an error if the user may not append items in this mode.
	AllowAdd(isHost bool) error
	// Next picks the item to play from the non-expired items, given in append order.
	// playlist is the full playlist including expired items.
	Next(upcoming, playlist []*models.PlaylistItem) *models.PlaylistItem
	// RefillOnExhaust reports whether finishing the last upcoming item re-queues a copy of it.
	RefillOnExhaust() bool
}

// ModeFor returns the policy for kind.
func ModeFor(kind models.QueueMode) (Mode, error) {
	switch kind {
	case models.QueueHostOnly:
		return hostOnly{}, nil
	case models.QueueAllPlayers:
		return allPlayers{}, nil
	case models.QueueAllPlayersRoundRobin:
		return roundRobin{}, nil
	}
	return nil, fmt.Errorf("%w: unknown queue mode %q", models.ErrInvalidState, kind)
}

type hostOnly struct{}

func (hostOnly) Kind() models.QueueMode { return models.QueueHostOnly }

func (hostOnly) AllowAdd(isHost bool) error {
	if !isHost {
		return fmt.Errorf("%w: only the host may add items in host-only mode", models.ErrNotHost)
	}
	return nil
}

func (hostOnly) Next(upcoming, _ []*models.PlaylistItem) *models.PlaylistItem {
	return upcoming[0]
}

func (hostOnly) RefillOnExhaust() bool { return true }

type allPlayers struct{}

func (allPlayers) Kind() models.QueueMode { return models.QueueAllPlayers }

func (allPlayers) AllowAdd(bool) error { return nil }

func (allPlayers) Next(upcoming, _ []*models.PlaylistItem) *models.PlaylistItem {
	return upcoming[0]
}

func (allPlayers) RefillOnExhaust() bool { return false }

// roundRobin rotates between owners: the next item belongs to whoever has had the
// fewest items played so far, earliest appended first among equals.
type roundRobin struct{}

func (roundRobin) Kind() models.QueueMode { return models.QueueAllPlayersRoundRobin }

func (roundRobin) AllowAdd(bool) error { return nil }

func (roundRobin) Next(upcoming, playlist []*models.PlaylistItem) *models.PlaylistItem {
	played := PlayCounts(playlist)
	ordered := append([]*models.PlaylistItem(nil), upcoming...)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := played[ordered[i].OwnerID], played[ordered[j].OwnerID]
		if pi != pj {
			return pi < pj
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered[0]
}

func (roundRobin) RefillOnExhaust() bool { return false }

// PlayCounts returns the number of expired items per owner.
func PlayCounts(playlist []*models.PlaylistItem) map[int64]int {
	counts := make(map[int64]int)
	for _, item := range playlist {
		if item.Expired {
			counts[item.OwnerID]++
		}
	}
	return counts
}

// internal/models/states.go
package models

// RoomState is the lifecycle stage of a room.
type RoomState string

const (
	RoomOpen           RoomState = "open"
	RoomWaitingForLoad RoomState = "waiting_for_load"
	RoomPlaying        RoomState = "playing"
)

// UserState is a room member's position in the gameplay cycle.
type UserState string

const (
	UserIdle             UserState = "idle"
	UserReady            UserState = "ready"
	UserWaitingForLoad   UserState = "waiting_for_load"
	UserLoaded           UserState = "loaded"
	UserReadyForGameplay UserState = "ready_for_gameplay"
	UserPlaying          UserState = "playing"
	UserFinishedPlay     UserState = "finished_play"
	UserResults          UserState = "results"
	UserSpectating       UserState = "spectating"
)

// IsGameplayState reports whether a user in this state belongs to the gameplay group.
func (s UserState) IsGameplayState() bool {
	switch s {
	case UserWaitingForLoad, UserLoaded, UserReadyForGameplay, UserPlaying:
		return true
	}
	return false
}

// IsServerReserved reports whether only the room itself may put a user in this state.
func (s UserState) IsServerReserved() bool {
	switch s {
	case UserWaitingForLoad, UserPlaying, UserResults:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s UserState) Valid() bool {
	switch s {
	case UserIdle, UserReady, UserWaitingForLoad, UserLoaded, UserReadyForGameplay,
		UserPlaying, UserFinishedPlay, UserResults, UserSpectating:
		return true
	}
	return false
}

// DownloadState describes whether a user has the current beatmap.
type DownloadState string

const (
	DownloadUnknown          DownloadState = "unknown"
	DownloadNotDownloaded    DownloadState = "not_downloaded"
	DownloadDownloading      DownloadState = "downloading"
	DownloadImporting        DownloadState = "importing"
	DownloadLocallyAvailable DownloadState = "locally_available"
)

// BeatmapAvailability is a user's download status for the current item's beatmap.
type BeatmapAvailability struct {
	State            DownloadState `json:"state"`
	DownloadProgress *float64      `json:"download_progress,omitempty"`
}

// MatchType selects the installed match controller.
type MatchType string

const (
	MatchHeadToHead MatchType = "head_to_head"
	MatchTeamVersus MatchType = "team_versus"
)

// Valid reports whether t names a known controller.
func (t MatchType) Valid() bool {
	return t == MatchHeadToHead || t == MatchTeamVersus
}

// QueueMode selects how the playlist is consumed.
type QueueMode string

const (
	QueueHostOnly             QueueMode = "host_only"
	QueueAllPlayers           QueueMode = "all_players"
	QueueAllPlayersRoundRobin QueueMode = "all_players_round_robin"
)

// Valid reports whether m names a known queue mode.
func (m QueueMode) Valid() bool {
	switch m {
	case QueueHostOnly, QueueAllPlayers, QueueAllPlayersRoundRobin:
		return true
	}
	return false
}

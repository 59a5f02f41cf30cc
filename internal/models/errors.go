// internal/models/errors.go
package models

import "errors"

// Error kinds surfaced to clients. Wrap with fmt.Errorf("%w: ...") to add detail
// and branch with errors.Is.
var (
	ErrNotJoined          = errors.New("user is not in a room")
	ErrAlreadyInRoom      = errors.New("user is already in a room")
	ErrInvalidPassword    = errors.New("invalid room password")
	ErrRestricted         = errors.New("user is restricted")
	ErrRoomEnded          = errors.New("room has ended")
	ErrInvalidStateChange = errors.New("invalid user state change")
	ErrInvalidState       = errors.New("invalid state")
	ErrNotHost            = errors.New("only the host can perform this action")
	ErrUserNotInRoom      = errors.New("target user is not in this room")
)

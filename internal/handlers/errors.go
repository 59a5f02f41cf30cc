// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/jason-s-yu/matchroom/internal/entity"
	"github.com/jason-s-yu/matchroom/internal/models"
)

// Stable error codes sent to the connection whose request failed.
const (
	CodeNotJoined          = "not_joined"
	CodeAlreadyInRoom      = "already_in_room"
	CodeInvalidPassword    = "invalid_password"
	CodeRestricted         = "restricted"
	CodeRoomEnded          = "room_ended"
	CodeInvalidStateChange = "invalid_state_change"
	CodeInvalidState       = "invalid_state"
	CodeNotHost            = "not_host"
	CodeUserNotInRoom      = "user_not_in_room"
	CodeNotFound           = "not_found"
	CodeTimeout            = "timeout"
	CodeBadRequest         = "bad_request"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{models.ErrNotJoined, CodeNotJoined},
	{models.ErrAlreadyInRoom, CodeAlreadyInRoom},
	{models.ErrInvalidPassword, CodeInvalidPassword},
	{models.ErrRestricted, CodeRestricted},
	{models.ErrRoomEnded, CodeRoomEnded},
	{models.ErrInvalidStateChange, CodeInvalidStateChange},
	{models.ErrInvalidState, CodeInvalidState},
	{models.ErrNotHost, CodeNotHost},
	{models.ErrUserNotInRoom, CodeUserNotInRoom},
	{entity.ErrNotFound, CodeNotFound},
	{entity.ErrTimeout, CodeTimeout},
	{errBadRequest, CodeBadRequest},
}

var errBadRequest = errors.New("bad request")

// errorCode maps err to its stable code; anything unrecognised is internal.
func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// clientMessage is what the client is told about err. Internal failures are not
// described beyond their code.
func clientMessage(err error) string {
	if errorCode(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}

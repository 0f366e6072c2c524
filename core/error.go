package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAccessDenied is returned when a principal may not use a room.
	ErrAccessDenied = errors.New("access denied")
	// ErrForbidden is returned when a principal may not modify a message or
	// perform a privileged operation.
	ErrForbidden       = errors.New("forbidden")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidReply is returned when a reply targets a message outside the room.
	ErrInvalidReply   = errors.New("reply must reference a message in the same room")
	ErrAlreadyMember  = errors.New("already a member of this room")
	ErrNotMember      = errors.New("not a member of this room")
	ErrConflictedRoom = errors.New("room name already taken")
	ErrRateLimited    = errors.New("too many messages")
	ErrValidation     = errors.New("validation error")
)

var clientErrors = []error{
	ErrUnauthenticated, ErrAccessDenied, ErrForbidden, ErrRoomNotFound,
	ErrMessageNotFound, ErrInvalidReply, ErrAlreadyMember, ErrNotMember,
	ErrConflictedRoom, ErrRateLimited, ErrUnknownEvent, ErrConflictedUser,
	ErrBadCredentials,
}

// ClientMessage returns a message for err that is safe to show to clients.
// It reports false for unexpected errors, which should be logged instead.
func ClientMessage(err error) (string, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error(), true
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

// ValidationError reports malformed input. Its message is safe to return to clients.
type ValidationError struct {
	msg string
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

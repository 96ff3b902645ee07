// Package apperr defines the error taxonomy shared by the registry, the
// resolution engine and the room session.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code. It is also the reason string sent
// back to clients in rejection events.
type Code string

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeNameTaken            Code = "NAME_TAKEN"
	CodeRoomFull             Code = "ROOM_FULL"
	CodeGameAlreadyStarted   Code = "GAME_ALREADY_STARTED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeIllegalAction        Code = "ILLEGAL_ACTION"
	CodeStaleReference       Code = "STALE_REFERENCE"
	CodeInsufficientCards    Code = "INSUFFICIENT_CARDS"
	CodeConservationViolated Code = "CONSERVATION_VIOLATED"
	CodeConnectionTimeout    Code = "CONNECTION_TIMEOUT"
	CodeDisconnected         Code = "DISCONNECTED"
	CodeInvalidMessage       Code = "INVALID_MESSAGE"
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeRoomClosed           Code = "ROOM_CLOSED"
)

// Fatal reports whether an error with this code leaves a room in a state
// that must not continue.
func (c Code) Fatal() bool {
	return c == CodeInsufficientCards || c == CodeConservationViolated
}

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of err, or CodeUnknown when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsFatal reports whether err carries a fatal code.
func IsFatal(err error) bool {
	return CodeOf(err).Fatal()
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrNameTaken            = New(CodeNameTaken, "name taken")
	ErrRoomFull             = New(CodeRoomFull, "room full")
	ErrGameAlreadyStarted   = New(CodeGameAlreadyStarted, "game already started")
	ErrForbidden            = New(CodeForbidden, "forbidden")
	ErrIllegalAction        = New(CodeIllegalAction, "illegal action")
	ErrStaleReference       = New(CodeStaleReference, "stale reference")
	ErrInsufficientCards    = New(CodeInsufficientCards, "insufficient cards")
	ErrConservationViolated = New(CodeConservationViolated, "card conservation violated")
	ErrInvalidMessage       = New(CodeInvalidMessage, "invalid message")
	ErrRoomNotFound         = New(CodeRoomNotFound, "room not found")
	ErrRoomClosed           = New(CodeRoomClosed, "room closed")
)

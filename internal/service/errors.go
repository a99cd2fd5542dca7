package service

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure.  The HTTP layer maps kinds to
// status codes.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindAlreadyExists Kind = "already_exists"
)

// Error is an expected business-rule violation.  Anything that is not an
// *Error returned from a service is a fatal storage failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Is matches by code, so errors.Is(err, ErrNotFound) holds for every
// not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidInterval      = &Error{KindValidation, "InvalidInterval", "end must be after start"}
	ErrStationsRequired     = &Error{KindValidation, "StationsRequired", "an instructor session must name at least one station"}
	ErrInvalidStation       = &Error{KindValidation, "InvalidStation", "station does not exist or is inactive"}
	ErrInvalidInput         = &Error{KindValidation, "InvalidInput", "invalid input"}
	ErrStationAlreadyBooked = &Error{KindConflict, "StationAlreadyBooked", "station is already booked for this time"}
	ErrFacilityClosed       = &Error{KindConflict, "FacilityClosed", "the facility is closed during this time"}
	ErrOverlappingClosure   = &Error{KindConflict, "OverlappingClosure", "closure overlaps an existing closure"}
	ErrNotFound             = &Error{KindNotFound, "NotFound", "not found"}
	ErrNotJoined            = &Error{KindNotFound, "NotJoined", "you are not a participant of this reservation"}
	ErrNotAuthorized        = &Error{KindAuthorization, "NotAuthorized", "not authorized"}
	ErrAlreadyJoined        = &Error{KindAlreadyExists, "AlreadyJoined", "already a participant of this reservation"}
	ErrDuplicateName        = &Error{KindAlreadyExists, "DuplicateName", "a station with this name already exists"}
	ErrDuplicateEmail       = &Error{KindAlreadyExists, "DuplicateEmail", "a user with this email already exists"}
)

// withMessage copies base with a more specific message.
func withMessage(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps a business-rule error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

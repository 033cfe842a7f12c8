package reservation

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeInvalid  ErrorCode = "INVALID_RESERVATION"
	ErrorCodeNotFound ErrorCode = "RESERVATION_NOT_FOUND"
)

// Error is returned for rejected reservation changes.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func invalidf(format string, args ...any) error {
	return &Error{Code: ErrorCodeInvalid, Msg: fmt.Sprintf(format, args...)}
}

func notFound(name string) error {
	return &Error{Code: ErrorCodeNotFound, Msg: fmt.Sprintf("reservation %q not found", name)}
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == code
}

// IsInvalid reports whether err rejected a reservation as invalid.
func IsInvalid(err error) bool {
	return hasCode(err, ErrorCodeInvalid)
}

// IsNotFound reports whether err names an unknown reservation.
func IsNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}

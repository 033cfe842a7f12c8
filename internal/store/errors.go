package store

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorCodeNotFound    ErrorCode = "NOT_FOUND"
)

// StoreError is the typed error returned by every backend. Unavailable
// errors wrap the underlying I/O failure.
type StoreError struct {
	Code ErrorCode
	Op   string
	Msg  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewUnavailableError reports a failed store operation.
func NewUnavailableError(op string, err error) error {
	return &StoreError{Code: ErrorCodeUnavailable, Op: op, Msg: "identifier store unavailable", Err: err}
}

// NewNotFoundError reports an identifier that has no record.
func NewNotFoundError(id string) error {
	return &StoreError{Code: ErrorCodeNotFound, Op: "get", Msg: fmt.Sprintf("identifier %s not found", id)}
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}

// IsUnavailable reports whether err is a store I/O failure.
func IsUnavailable(err error) bool {
	return hasCode(err, ErrorCodeUnavailable)
}

// IsNotFound reports whether err is a missing identifier record.
func IsNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}

package service

import (
	"errors"
	"fmt"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
	"github.com/user/sctid/internal/store"
)

type ErrorCode string

const (
	ErrorCodeAllocationExhausted ErrorCode = "ALLOCATION_EXHAUSTED"
	ErrorCodeInvalidIdentifier   ErrorCode = "INVALID_IDENTIFIER"
	ErrorCodeInvalidNamespace    ErrorCode = "INVALID_NAMESPACE"
	ErrorCodeInvalidCategory     ErrorCode = "INVALID_CATEGORY"
	ErrorCodeStatusConflict      ErrorCode = "STATUS_CONFLICT"
	ErrorCodeStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeInvalidReservation  ErrorCode = "INVALID_RESERVATION"
	ErrorCodeReservationNotFound ErrorCode = "RESERVATION_NOT_FOUND"
)

// Error is the typed error returned by Service operations.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func exhaustedError(quantity int, ns string, cat sctid.Category, maxAttempts int, cause error) error {
	return &Error{
		Code: ErrorCodeAllocationExhausted,
		Msg: fmt.Sprintf("Couldn't generate %d identifiers [%s, %s] in maximum (%d) number of attempts",
			quantity, cat, sctid.NamespaceLabel(ns), maxAttempts),
		Err: cause,
	}
}

func invalidIdentifier(id string, err error) error {
	return &Error{Code: ErrorCodeInvalidIdentifier, Msg: fmt.Sprintf("invalid identifier %q: %v", id, err), Err: err}
}

func storeUnavailable(err error) error {
	return &Error{Code: ErrorCodeStoreUnavailable, Msg: err.Error(), Err: err}
}

func statusConflict(id string, from, to sctid.Status) error {
	return &Error{
		Code: ErrorCodeStatusConflict,
		Msg:  fmt.Sprintf("identifier %s cannot move from %s to %s", id, from, to),
	}
}

// CodeOf classifies err, including store and reservation errors that reach
// callers unwrapped. It returns "" for unclassified errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Code
	case store.IsUnavailable(err):
		return ErrorCodeStoreUnavailable
	case store.IsNotFound(err):
		return ErrorCodeNotFound
	case reservation.IsInvalid(err):
		return ErrorCodeInvalidReservation
	case reservation.IsNotFound(err):
		return ErrorCodeReservationNotFound
	}
	return ""
}

// IsExhausted reports whether err is an allocation-exhausted error.
func IsExhausted(err error) bool {
	return CodeOf(err) == ErrorCodeAllocationExhausted
}

// IsInvalidIdentifier reports whether err rejected a malformed identifier.
func IsInvalidIdentifier(err error) bool {
	return CodeOf(err) == ErrorCodeInvalidIdentifier
}

// IsStoreUnavailable reports whether err is a store I/O failure.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == ErrorCodeStoreUnavailable
}

// IsStatusConflict reports whether err rejected a status transition.
func IsStatusConflict(err error) bool {
	return CodeOf(err) == ErrorCodeStatusConflict
}

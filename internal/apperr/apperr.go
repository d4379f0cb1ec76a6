// Package apperr defines the typed failures returned by the booking core.
// Every error carries a Kind, used by the HTTP layer to pick a status
// code, and a stable Code clients can switch on.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindExpired         Kind = "EXPIRED"
	KindForbidden       Kind = "FORBIDDEN"
	KindInvalidState    Kind = "INVALID_STATE"
	KindExternalFailure Kind = "EXTERNAL_FAILURE"
	KindInternal        Kind = "INTERNAL"
)

// Code identifies a specific failure within a Kind.
type Code string

const (
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeTripNotFound        Code = "TRIP_NOT_FOUND"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeSeatNotFound        Code = "SEAT_NOT_FOUND"
	CodeBookingNotFound     Code = "BOOKING_NOT_FOUND"
	CodePaymentNotFound     Code = "PAYMENT_NOT_FOUND"
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeJobNotFound         Code = "JOB_NOT_FOUND"
	CodeSeatUnavailable     Code = "SEAT_UNAVAILABLE"
	CodeSeatAlreadyHeld     Code = "SEAT_ALREADY_HELD"
	CodeHoldExpired         Code = "HOLD_EXPIRED"
	CodeSessionForbidden    Code = "SESSION_FORBIDDEN"
	CodeBookingForbidden    Code = "BOOKING_FORBIDDEN"
	CodeAlreadyCancelled    Code = "ALREADY_CANCELLED"
	CodeAlreadyCompleted    Code = "ALREADY_COMPLETED"
	CodeTooCloseToDeparture Code = "TOO_CLOSE_TO_DEPARTURE"
	CodeTripDeparted        Code = "TRIP_DEPARTED"
	CodeNotPayable          Code = "NOT_PAYABLE"
	CodeNotRetryable        Code = "NOT_RETRYABLE"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeGatewayFailure      Code = "GATEWAY_FAILURE"
	CodeInternal            Code = "INTERNAL"
)

// Error is a typed failure.  Two Errors match under errors.Is when their
// codes are equal, so the sentinels below can be used as targets.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an Error.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(err error, kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinels for errors.Is checks.
var (
	ErrTripNotFound        = &Error{Kind: KindNotFound, Code: CodeTripNotFound}
	ErrUserNotFound        = &Error{Kind: KindNotFound, Code: CodeUserNotFound}
	ErrSeatNotFound        = &Error{Kind: KindNotFound, Code: CodeSeatNotFound}
	ErrBookingNotFound     = &Error{Kind: KindNotFound, Code: CodeBookingNotFound}
	ErrPaymentNotFound     = &Error{Kind: KindNotFound, Code: CodePaymentNotFound}
	ErrSessionNotFound     = &Error{Kind: KindNotFound, Code: CodeSessionNotFound}
	ErrSeatUnavailable     = &Error{Kind: KindConflict, Code: CodeSeatUnavailable}
	ErrSeatAlreadyHeld     = &Error{Kind: KindConflict, Code: CodeSeatAlreadyHeld}
	ErrHoldExpired         = &Error{Kind: KindExpired, Code: CodeHoldExpired}
	ErrSessionForbidden    = &Error{Kind: KindForbidden, Code: CodeSessionForbidden}
	ErrBookingForbidden    = &Error{Kind: KindForbidden, Code: CodeBookingForbidden}
	ErrAlreadyCancelled    = &Error{Kind: KindInvalidState, Code: CodeAlreadyCancelled}
	ErrAlreadyCompleted    = &Error{Kind: KindInvalidState, Code: CodeAlreadyCompleted}
	ErrTooCloseToDeparture = &Error{Kind: KindInvalidState, Code: CodeTooCloseToDeparture}
	ErrTripDeparted        = &Error{Kind: KindInvalidState, Code: CodeTripDeparted}
	ErrNotPayable          = &Error{Kind: KindInvalidState, Code: CodeNotPayable}
	ErrNotRetryable        = &Error{Kind: KindInvalidState, Code: CodeNotRetryable}
	ErrGatewayFailure      = &Error{Kind: KindExternalFailure, Code: CodeGatewayFailure}
)

// Package apperr is the error taxonomy shared by the services and the HTTP boundary.
package apperr

import (
	"net/http"
	"time"
)

type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindRateLimited       Kind = "rate_limit_exceeded"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindAlreadyProcessed  Kind = "already_processed"
	KindMissingReason     Kind = "missing_reason"
	KindInternal          Kind = "internal_error"
)

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInsufficientFunds, KindMissingReason:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyProcessed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind       Kind
	Msg        string
	Details    any
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Msg: "invalid input"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Msg: "insufficient funds"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Msg: "too many requests"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Msg: "unauthorized"}
	ErrForbidden         = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrAlreadyProcessed  = &Error{Kind: KindAlreadyProcessed, Msg: "transfer already processed"}
	ErrMissingReason     = &Error{Kind: KindMissingReason, Msg: "rejection reason is required"}
)

func Validation(details any) *Error {
	return &Error{Kind: KindValidation, Msg: "invalid input", Details: details}
}

func InsufficientFunds(available string) *Error {
	return &Error{Kind: KindInsufficientFunds, Msg: "insufficient funds", Details: map[string]string{"available": available}}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Msg: "too many transfer requests", RetryAfter: retryAfter}
}

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

func AlreadyProcessed(msg string) *Error { return &Error{Kind: KindAlreadyProcessed, Msg: msg} }

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

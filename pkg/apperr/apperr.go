// Package apperr is the error taxonomy shared by services and HTTP handlers.
// Services classify failures into a Kind; handlers only ever render the Kind's
// status and the public message, never the wrapped cause.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind, a message safe to show to clients and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }
func Auth(msg string) *Error       { return &Error{Kind: KindAuth, Msg: msg} }
func Forbidden(msg string) *Error  { return &Error{Kind: KindForbidden, Msg: msg} }
func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Msg: msg} }

// Conflict wraps cause so callers can still match the component sentinel.
func Conflict(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Msg: msg, Err: cause}
}

// Internal hides cause behind a generic message.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: cause}
}

// KindOf reports the Kind of err; unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the status and client-facing message for err.
func Public(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return http.StatusInternalServerError, "internal error"
		}
		return e.Kind.Status(), e.Msg
	}
	return http.StatusInternalServerError, "internal error"
}

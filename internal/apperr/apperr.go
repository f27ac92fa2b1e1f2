package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport boundary. The match core returns
// these as tagged values; handlers map them to HTTP statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindNotFound
	KindBadRequest
	KindInvalidState
	KindAlreadyInMatch
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindInvalidState:
		return "invalid_state"
	case KindAlreadyInMatch:
		return "already_in_match"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for untagged errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func Unauthorized(msg string) *Error   { return New(KindUnauthorized, msg) }
func NotFound(msg string) *Error       { return New(KindNotFound, msg) }
func BadRequest(msg string) *Error     { return New(KindBadRequest, msg) }
func InvalidState(msg string) *Error   { return New(KindInvalidState, msg) }
func AlreadyInMatch(msg string) *Error { return New(KindAlreadyInMatch, msg) }
func Conflict(msg string) *Error       { return New(KindConflict, msg) }
func Unavailable(msg string, err error) *Error {
	return Wrap(KindUnavailable, msg, err)
}

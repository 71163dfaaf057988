package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels). Codes and reasons are part of the wire
// contract and never change.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrExternal        = errors.New("external error")
	ErrInternal        = errors.New("internal error")
)

// ErrorKind pairs the stable numeric code with its wire reason.
type ErrorKind struct {
	Code   int
	Reason string
}

var (
	KindInvalidArgument = ErrorKind{Code: 1, Reason: "ERR_INVALID_ARGUMENT"}
	KindInvalidState    = ErrorKind{Code: 2, Reason: "ERR_INVALID_STATE"}
	KindNotFound        = ErrorKind{Code: 3, Reason: "ERR_NOT_FOUND"}
	KindRateLimit       = ErrorKind{Code: 4, Reason: "ERR_RATE_LIMIT"}
	KindExternal        = ErrorKind{Code: 5, Reason: "ERR_EXTERNAL"}
	KindInternal        = ErrorKind{Code: 6, Reason: "ERR_INTERNAL"}
)

// Errorf builds a user-facing error bound to a sentinel. Error() returns
// only the formatted message; the sentinel is still matched by errors.Is,
// so the HTTP layer can classify without leaking the sentinel text into
// response bodies.
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// KindOf classifies err by its sentinel. Unrecognized errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrExternal):
		return KindExternal
	default:
		return KindInternal
	}
}

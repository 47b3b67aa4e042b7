package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of catalog failures. The REST layer maps
// kinds to HTTP statuses; services and repositories never pick status codes.
type ErrorKind string

const (
	ErrUnsupportedMedia  ErrorKind = "unsupported_media"
	ErrPayloadTooLarge   ErrorKind = "payload_too_large"
	ErrNotFound          ErrorKind = "not_found"
	ErrInUse             ErrorKind = "in_use"
	ErrForbidden         ErrorKind = "forbidden"
	ErrNeedsConfirmation ErrorKind = "needs_confirmation"
	ErrConflict          ErrorKind = "conflict"
	ErrResolverFailure   ErrorKind = "resolver_failure"
)

// Error is a catalog failure with a machine-readable kind and, depending on
// the kind, a payload: in_use carries the blocking usages, needs_confirmation
// carries the token for the second call, resolver_failure names the resolvers
// that could not answer.
type Error struct {
	Kind              ErrorKind
	Message           string
	Usages            []Usage
	FailedResolvers   []string
	ConfirmationToken string
	Err               error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a bare Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error of the given kind around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError unwraps err to a catalog *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given catalog error kind.
func IsKind(err error, kind ErrorKind) bool {
	if e, ok := AsError(err); ok {
		return e.Kind == kind
	}
	return false
}

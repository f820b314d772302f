// Package fault defines the error taxonomy shared by all pipeline stages.
//
// Every stage classifies failures into one of five kinds: Unauthorized,
// InvalidRequest, NotFound, UpstreamFailure, Internal. Services wrap the
// underlying cause with %w so callers can unwrap it; the HTTP boundary maps
// kinds to status codes and nothing else inspects them.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindInternal is the fallback for anything unclassified.
	KindInternal Kind = iota

	// KindUnauthorized means no authenticated principal was presented.
	KindUnauthorized

	// KindInvalidRequest means a required field is missing or malformed.
	KindInvalidRequest

	// KindNotFound means a referenced entity does not exist.
	KindNotFound

	// KindUpstreamFailure means a reasoning, store, or notification call
	// failed or returned unparseable data.
	KindUpstreamFailure
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindUpstreamFailure:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil if err is nil.
func Wrap(kind Kind, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors are
// KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error chain to the HTTP status the boundary returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

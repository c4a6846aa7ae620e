package remote

import (
	"errors"
	"fmt"
)

// Result is the outcome of a call the backend answered. OK is false when the
// backend rejected the request with a non-2xx status; Status, Error and Field
// then describe the rejection.
type Result[T any] struct {
	OK     bool
	Data   T
	Status int
	Error  string
	Field  string
}

// Empty is the payload of calls whose response body is ignored.
type Empty struct{}

// ErrUnauthenticated is returned by calls that need a bearer token when the
// session has none. It is a transport-class failure: callers fall back to
// local state.
var ErrUnauthenticated = errors.New("no authenticated session")

// TransportError means the backend could not be reached or answered with a
// body that could not be decoded. The state of the server is unknown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// RejectionError turns a failed Result into an error value for callers that
// propagate rejections through error returns.
type RejectionError struct {
	Status  int
	Message string
	Field   string
}

func (e *RejectionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rejected (%d) on %s: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Message)
}

// Rejection returns the rejection carried by r, or nil when r is OK.
func (r Result[T]) Rejection() *RejectionError {
	if r.OK {
		return nil
	}
	return &RejectionError{Status: r.Status, Message: r.Error, Field: r.Field}
}

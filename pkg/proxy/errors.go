package proxy

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies client-visible proxy failures.
type ErrorKind int

const (
	// KindPathNotAllowed means the request addressed a route outside the
	// proxied prefixes.
	KindPathNotAllowed ErrorKind = iota

	// KindUpstreamTransport means the upstream could not be reached
	// (connect, timeout, or read failure).
	KindUpstreamTransport
)

// Error is a terminal, client-visible request failure. Conversion failures
// never become an Error; they are recovered by serving the original bytes.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the failure.
func (e *Error) Status() int {
	switch e.Kind {
	case KindPathNotAllowed:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// Message returns the plain-text response body for the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case KindPathNotAllowed:
		return "Path not allowed"
	default:
		return fmt.Sprintf("Upstream error: %v", e.Err)
	}
}

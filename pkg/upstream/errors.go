package upstream

import "fmt"

// TransportError wraps a connect, timeout, or read failure reaching the
// upstream. Application-level upstream failures (non-2xx statuses) are not
// errors; they are returned as ordinary responses.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream request to %s failed: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

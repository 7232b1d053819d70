package backend

import (
	"errors"
	"fmt"
	"strings"
)

// NetworkError reports a request that never produced an HTTP response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network failure: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Status, body)
}

// IsNetwork reports whether err wraps a *NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

package backend

import (
	"errors"
	"fmt"
)

// ErrInvalidBaseURL is returned by New for unusable base URLs.
var ErrInvalidBaseURL = errors.New("backend: invalid base URL")

// NetworkError reports that no response was received: connection failures,
// timeouts, cancelled rate-limit waits and truncated bodies.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err carries a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

package gateway

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when no API token is configured. The call
// fails fast without touching the network.
var ErrUnauthenticated = errors.New("gateway: no API token configured")

// ErrAuthExpired is returned when the gateway rejects the token mid-session
// (HTTP 401). The client clears its cached token before returning it.
var ErrAuthExpired = errors.New("gateway: API token rejected")

// HTTPError is any other non-2xx response from the gateway.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway: HTTP %d: %s", e.Status, e.Body)
}

// NetworkError is a transport-level failure. Callers treat it exactly like
// HTTPError: skip the cycle and let the next tick retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a per-cycle failure the sync engine may
// silently retry on the next tick. Auth errors are not transient.
func IsTransient(err error) bool {
	var httpErr *HTTPError
	var netErr *NetworkError
	return errors.As(err, &httpErr) || errors.As(err, &netErr)
}

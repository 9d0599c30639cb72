package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamStatus matches every StatusError.
	ErrUpstreamStatus = errors.New("upstream returned an error status")
	ErrCircuitOpen    = errors.New("upstream circuit breaker is open")
	ErrInvalidPayload = errors.New("upstream returned invalid JSON")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d from %s", e.Code, e.URL)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamStatus
}

// countsAsFailure reports whether err should move the circuit breaker towards open.
// Client errors say nothing about upstream health.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == 429
	}
	return true
}

package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized marks authorization failures; the session has already been cleared when it is returned.
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrMalformedResponse indicates a 2xx response whose body did not match the API contract.
	ErrMalformedResponse = errors.New("gateway: malformed response")
	// ErrInvalidConfig indicates a client constructed without required settings.
	ErrInvalidConfig = errors.New("gateway: invalid config")
)

// APIError is a non-2xx response reported by the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gateway: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("gateway: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// Is lets callers match authorization failures with errors.Is(err, ErrUnauthorized).
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// TransportError wraps a failure to complete the round trip at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status of an APIError, or 0 for any other error.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoVenue is returned when a venue-scoped call has no venue id.
	ErrNoVenue = errors.New("venue id is required")

	// ErrUnauthorized matches an AuthError for a 401 response.
	ErrUnauthorized = errors.New("venue api: unauthorized")

	// ErrForbidden matches an AuthError for a 403 response.
	ErrForbidden = errors.New("venue api: forbidden")
)

// AuthError is a 401 or 403 from the venue API. It is never retried with
// backoff. A 401 gets one immediate retry when the token source yields a
// different token.
type AuthError struct {
	StatusCode int
	Path       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("venue api %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is matches ErrUnauthorized and ErrForbidden by status code.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// Kind classifies the error for reporting.
func (e *AuthError) Kind() string { return "auth" }

// StatusError is any other non-success response.
type StatusError struct {
	StatusCode int
	Path       string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("venue api %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the request may succeed when repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Kind classifies the error for reporting.
func (e *StatusError) Kind() string { return "api" }

// IsAuth reports whether err carries a 401 or 403 from the venue API.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

package ubidots

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for Ubidots operations.
//
// A *StatusError unwraps to one of ErrUnauthorized, ErrNotFound or
// ErrRetriesExhausted, so callers can branch with errors.Is.
var (
	// ErrMissingToken is returned when a client is built without a token.
	ErrMissingToken = errors.New("ubidots: token is required")

	// ErrUnauthorized indicates the token was rejected (401/403). Not retried.
	ErrUnauthorized = errors.New("ubidots: token rejected")

	// ErrNotFound indicates the requested resource does not exist. Not retried.
	ErrNotFound = errors.New("ubidots: resource not found")

	// ErrRetriesExhausted indicates every attempt returned a retryable status.
	ErrRetriesExhausted = errors.New("ubidots: retries exhausted")

	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("ubidots: transport failure")

	// ErrMalformedPage indicates a list response was not a {results, next} envelope.
	ErrMalformedPage = errors.New("ubidots: malformed page")

	// ErrPaginationCycle indicates a next link pointed back to a page already read.
	ErrPaginationCycle = errors.New("ubidots: pagination cycle")

	// ErrMalformedCSV indicates a CSV values response could not be parsed.
	ErrMalformedCSV = errors.New("ubidots: malformed csv")

	// ErrNoDeviceToken indicates a device has no tokens issued.
	ErrNoDeviceToken = errors.New("ubidots: device has no token")
)

// StatusError describes a request whose final response was not a success.
type StatusError struct {
	URL        string
	StatusCode int
	Attempts   int
	Outcome    Outcome
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ubidots: GET %s: status %d (%s) after %d attempt(s)",
		e.URL, e.StatusCode, e.Outcome, e.Attempts)
}

// Unwrap maps the status to a sentinel error.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrRetriesExhausted
	}
}

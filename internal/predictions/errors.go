package predictions

import (
	"errors"
	"fmt"
)

// ErrAPIUnavailable is matched (via errors.Is) by the error returned once a
// fetch has exhausted its retry budget.
var ErrAPIUnavailable = errors.New("prediction API unavailable")

// APIUnavailableError describes a fetch that gave up.
type APIUnavailableError struct {
	Endpoint string
	Attempts int
	// Err is the failure of the last attempt.
	Err error
}

func (e *APIUnavailableError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *APIUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAPIUnavailable}
	}
	return []error{ErrAPIUnavailable, e.Err}
}

// RequestError reports a request that could not be built. Retrying it cannot
// help, so the fetcher treats it as fatal.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request for %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prediction fetch failed: %s returned %s", e.URL, e.Status)
}

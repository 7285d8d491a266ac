package reportsync

import "errors"

var (
	// ErrNotFound is returned by a Store when no entry exists for a key
	ErrNotFound = errors.New("cache entry not found")

	// ErrRequestInProgress is returned by a Claimer when another process is already fetching the key
	ErrRequestInProgress = errors.New("report request for this key is already in progress")
)

// RemoteError is a fetch error read back from a shared store. Only the
// message and HTTP status survive serialization.
type RemoteError struct {
	Message    string
	StatusCode int
}

func (e *RemoteError) Error() string {
	return e.Message
}

// HTTPStatus returns the HTTP status of the failed request, or 0.
func (e *RemoteError) HTTPStatus() int {
	return e.StatusCode
}

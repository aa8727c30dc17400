// Package errs defines the error taxonomy shared by the retrieval index,
// the memory engine and the turn handler.
package errs

import "errors"

var (
	// ErrNotFound reports an unknown collection, index or persona.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput reports malformed build input, an empty query or k < 1.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamUnavailable reports an unreachable or failing generation service.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistence marks a durable save that failed after the in-memory
	// mutation already happened. It is logged, never returned from a turn.
	ErrPersistence = errors.New("persistence warning")

	// ErrCollectionNotIndexed is returned by retrieval when the collection has
	// no index. It matches ErrNotFound with errors.Is.
	ErrCollectionNotIndexed = &notIndexedError{}
)

type notIndexedError struct{}

func (e *notIndexedError) Error() string { return "collection not indexed" }

func (e *notIndexedError) Is(target error) bool { return target == ErrNotFound }

// Kind returns a short label for err, used as a metric label and in API error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

package blob

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is returned by AcquireSlot when a newer acquisition for
	// the same slot was issued before this one completed.
	ErrSuperseded = errors.New("slot acquisition superseded")

	// ErrReleased is returned when operating on a handle that is no longer live.
	ErrReleased = errors.New("handle released")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("blob manager closed")
)

// ResourceFetchError reports that the bytes behind a path could not be obtained.
type ResourceFetchError struct {
	Path string

	// Status is the HTTP status of a non-success response, 0 for transport failures.
	Status int

	Err error
}

// Error implements the error interface.
func (e *ResourceFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch resource %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("fetch resource %s: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ResourceFetchError) Unwrap() error {
	return e.Err
}

// IsResourceFetchError reports whether err is, or wraps, a ResourceFetchError.
func IsResourceFetchError(err error) bool {
	var rfe *ResourceFetchError
	return errors.As(err, &rfe)
}

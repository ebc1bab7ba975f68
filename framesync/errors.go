package framesync

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrCreation marks a failure to allocate a fence, semaphore, command buffer or surface
	// resource, at startup or during recreation.
	ErrCreation = errors.New("resource creation failed")
	// ErrTooFewImages means the surface offers fewer images than there are frames in flight.
	ErrTooFewImages = errors.New("fewer presentable images than frames in flight")
	// ErrSurfaceStale means the surface is out of date. It is the only recoverable error.
	ErrSurfaceStale = errors.New("presentation surface is out of date")
	ErrAcquire      = errors.New("image acquisition failed")
	ErrRecording    = errors.New("command recording failed")
	ErrSubmission   = errors.New("queue submission failed")
	ErrPresent      = errors.New("present failed")
)

// IsFatal reports whether err leaves the loop unable to guarantee slot and image consistency.
// Every error except a stale surface is fatal.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrSurfaceStale)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func creationError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCreation)
}

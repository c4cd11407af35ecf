package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrFatal marks errors that must terminate the frame loop.
	ErrFatal = errors.New("fatal renderer error")

	ErrNoSurfaceFormat       = errors.New("surface reports no supported formats")
	ErrNoPresentMode         = errors.New("surface reports no supported present modes")
	ErrWindowClosed          = errors.New("window was closed")
	ErrCommandBufferInFlight = errors.New("command buffer is still in flight")
	ErrInvalidGraph          = errors.New("invalid dependent renderer graph")
)

// NewFatalError builds an error naming the failing operation and marks it fatal.
func NewFatalError(operation string, detail string) error {
	return errors.Mark(errors.Newf("%s failed: %s", operation, detail), ErrFatal)
}

// MarkFatal marks an existing error as fatal, keeping its message.
func MarkFatal(err error, operation string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "%s failed", operation), ErrFatal)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

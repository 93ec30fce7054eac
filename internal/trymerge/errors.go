package trymerge

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand is returned when a command has no configured
	// branch prefix.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDuplicateInFlight is returned when a try-merge for the same pull
	// request is already running.
	ErrDuplicateInFlight = errors.New("try-merge for the pull request is already running")
	// ErrStopped is returned when a try-merge is requested after Stop was
	// called.
	ErrStopped = errors.New("orchestrator is stopped")

	errPullRequestClosed = errors.New("pull request is closed")
)

// PersistenceError is returned when recording the state of a job in the
// JobStore failed.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

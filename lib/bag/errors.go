package bag

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRecording is returned when a bag is constructed without any recordings.
	ErrMissingRecording = errors.New("no bag files were specified")

	// ErrNotRunning matches every *NotRunningError via errors.Is.
	ErrNotRunning = errors.New("bag is not running")

	// ErrStdinNotPiped is returned by Send when the caller redirected the child's stdin.
	ErrStdinNotPiped = errors.New("stdin of bag process is not a pipe")

	// ErrInterrupted marks a user-initiated interrupt. Use absorbs it.
	ErrInterrupted = errors.New("interrupted by user")
)

// NotRunningError is returned when interaction is attempted with a bag that has no child process.
type NotRunningError struct {
	// Action is the attempted interaction, e.g. "stop" or "wait for".
	Action string
}

func (e *NotRunningError) Error() string {
	action := e.Action
	if action == "" {
		action = "talk to"
	}
	return fmt.Sprintf("cannot %s process while bag is not running", action)
}

func (e *NotRunningError) Is(target error) bool {
	return target == ErrNotRunning
}

func notRunning(action string) error {
	return &NotRunningError{Action: action}
}

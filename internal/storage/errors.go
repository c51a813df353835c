package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSnapshot indicates no snapshot file exists yet.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrSnapshotNotFound indicates a specific tick's snapshot is missing.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCorruptEvent indicates an event log line could not be decoded.
	ErrCorruptEvent = errors.New("corrupt event record")
)

// EventLogError wraps a failure reading or writing the event log with
// file context.
type EventLogError struct {
	File string
	Err  error
}

func (e *EventLogError) Error() string {
	return fmt.Sprintf("event log %s: %v", e.File, e.Err)
}

func (e *EventLogError) Unwrap() error { return e.Err }

// NewEventLogError wraps err with the file it occurred on.
func NewEventLogError(file string, err error) *EventLogError {
	return &EventLogError{File: file, Err: err}
}

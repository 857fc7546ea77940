package annotation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a soft failure: the referenced detection is not in the
	// working set. Callers treat it as a no-op.
	ErrNotFound = errors.New("detection not found")

	// ErrConcurrentSave is returned synchronously when a save is requested
	// while another one for the same store is still pending.
	ErrConcurrentSave = errors.New("save already in progress")

	// ErrSaveAborted is returned when the caller cancelled the save before the
	// persistence boundary completed it.
	ErrSaveAborted = errors.New("save aborted")

	// ErrInvalid is matched by every *ValidationError.
	ErrInvalid = errors.New("invalid detection")

	// ErrUnresolvedIDs is matched by every *UnresolvedIDsError.
	ErrUnresolvedIDs = errors.New("created detections have no server id")
)

// ValidationError describes malformed detection input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid detection %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// NotFoundError reports the id that could not be found.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("detection %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError wraps a failure returned by the persistence boundary.
// Working set, baseline and history are untouched when it is returned.
type PersistenceError struct {
	UploadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save changeset for upload %s: %v", e.UploadID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UnresolvedIDsError lists detections a save created without the
// persistence boundary reporting their server ids. The store refuses further
// saves until it is reconciled with a fresh seed.
type UnresolvedIDsError struct {
	UploadID string
	IDs      []string
}

func (e *UnresolvedIDsError) Error() string {
	return fmt.Sprintf("upload %s: no server id for created detections %v", e.UploadID, e.IDs)
}

func (e *UnresolvedIDsError) Is(target error) bool {
	return target == ErrUnresolvedIDs
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

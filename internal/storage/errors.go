package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrTrackNotInitialized is returned when a track has never been saved.
	// Callers must not treat it as an empty track.
	ErrTrackNotInitialized = errors.New("track not initialized")

	// ErrTrackExists is returned when creating a track that is already on disk.
	ErrTrackExists = errors.New("track already exists")

	// ErrLockTimeout is returned when the per-track lock could not be taken
	// within the configured timeout.
	ErrLockTimeout = errors.New("timed out waiting for track lock")

	// ErrInvalidID is returned for track or task ids that cannot be used as
	// file names.
	ErrInvalidID = errors.New("invalid id")
)

// StoreError carries the track and operation of a storage failure. The
// on-disk state is never left half-written, so these are safe to retry.
type StoreError struct {
	TrackID string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s track %s: %v", e.Op, e.TrackID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(trackID, op string, err error) error {
	return &StoreError{TrackID: trackID, Op: op, Err: err}
}

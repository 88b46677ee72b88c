package store

import "errors"

// Sentinel error kinds for the segment/memtable store. Callers branch
// on these with errors.Is rather than message text.
var (
	// ErrNotFound is returned by Get for an absent or tombstoned id.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidShape is returned for a dimension mismatch or an
	// oversized identifier.
	ErrInvalidShape = errors.New("store: invalid shape")

	// ErrCorruptSegment is returned when a segment's magic, version,
	// CRC, or size fail validation on open.
	ErrCorruptSegment = errors.New("store: corrupt segment")

	// ErrIoError wraps an underlying storage failure.
	ErrIoError = errors.New("store: io error")

	// ErrConcurrentModification is returned when a second writer tries
	// to take the single-writer lock an active writer already holds.
	ErrConcurrentModification = errors.New("store: concurrent modification")
)

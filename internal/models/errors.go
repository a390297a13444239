package models

import "errors"

// Domain errors. Callers wrap these with context and match with errors.Is.
var (
	// ErrInvalidGeometry is returned for malformed rects or polygons.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrNotFound is returned when an area or map id is not present.
	ErrNotFound = errors.New("not found")
	// ErrActiveMapDeletion is returned when deleting a room's active map.
	ErrActiveMapDeletion = errors.New("cannot delete the active boundary map")
	// ErrConflictingActivation is returned when the activation target is
	// missing or belongs to a different room.
	ErrConflictingActivation = errors.New("conflicting activation")
	// ErrStaleMap is returned by optimistic saves carrying an old version.
	ErrStaleMap = errors.New("boundary map was modified since it was loaded")
	// ErrPersistence wraps network or storage failures on load and save.
	ErrPersistence = errors.New("persistence failure")
	// ErrEditCanceled marks an operator-canceled image edit.
	ErrEditCanceled = errors.New("image edit canceled")
	// ErrInvalidMap is returned for map payloads that fail validation
	// (missing room, duplicate area ids).
	ErrInvalidMap = errors.New("invalid boundary map")
)

package models

import "errors"

var (
	// ErrNotFound is returned when a record is absent from every backend
	// consulted for the request.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned by a backend when a write collides with an
	// existing id.
	ErrDuplicate = errors.New("duplicate record id")
)

package catalog

import "errors"

var (
	// ErrNotFound is returned when a permission does not exist
	ErrNotFound = errors.New("permission not found")

	// ErrConflict is returned when a permission code is already taken
	ErrConflict = errors.New("permission code already exists")
)

package menu

import "errors"

var (
	// ErrNotFound is returned when a menu node does not exist
	ErrNotFound = errors.New("menu not found")

	// ErrInvalidParent is returned when the referenced parent does not
	// exist or is retired
	ErrInvalidParent = errors.New("invalid parent menu")

	// ErrSelfParent is returned when a node is set as its own parent
	ErrSelfParent = errors.New("menu cannot be its own parent")

	// ErrCyclicParent is returned when a parent change would create a
	// cycle
	ErrCyclicParent = errors.New("menu parent change would create a cycle")
)

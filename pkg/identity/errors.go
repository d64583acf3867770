package identity

import "errors"

var (
	// ErrNotFound is returned when a user does not exist
	ErrNotFound = errors.New("user not found")

	// ErrConflict is returned when a username is already taken
	ErrConflict = errors.New("username already exists")
)

package rbac

import "errors"

var (
	// ErrRoleNotFound is returned when a role does not exist
	ErrRoleNotFound = errors.New("role not found")

	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrPermissionNotFound is returned when a permission does not exist
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrConflict is returned when a role name is already taken
	ErrConflict = errors.New("role name already exists")
)

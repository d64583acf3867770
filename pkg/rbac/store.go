package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinel-rbac/sentinel/pkg/storage"
)

// Store handles role, grant, and membership persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new role. Returns ErrConflict when the name is
// already taken, including by a retired role.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)",
		role.Name,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	if exists {
		return ErrConflict
	}

	query := `
		INSERT INTO roles (name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		role.Name,
		role.Description,
		true,
		now,
		now,
	).Scan(&role.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.IsActive = true
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	var role Role
	var description sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, is_active, created_at, updated_at FROM roles WHERE id = $1",
		roleID,
	).Scan(&role.ID, &role.Name, &description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if description.Valid {
		v := description.String
		role.Description = &v
	}

	return &role, nil
}

// ListRoles retrieves roles ordered by name. Retired roles are included
// only when includeInactive is set.
func (s *Store) ListRoles(ctx context.Context, includeInactive bool) ([]*Role, error) {
	query := "SELECT id, name, description, is_active, created_at, updated_at FROM roles"
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		var description sql.NullString

		if err := rows.Scan(&role.ID, &role.Name, &description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if description.Valid {
			v := description.String
			role.Description = &v
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	return roles, nil
}

// RoleUpdateParams holds the mutable fields of a role. Nil fields are
// left unchanged.
type RoleUpdateParams struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// UpdateRole applies partial updates to a role and returns the updated
// row
func (s *Store) UpdateRole(ctx context.Context, roleID int64, params RoleUpdateParams) (*Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil && *params.Name != role.Name {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1 AND id <> $2)",
			*params.Name, roleID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check role name: %w", err)
		}
		if exists {
			return nil, ErrConflict
		}
		role.Name = *params.Name
	}
	if params.Description != nil {
		role.Description = params.Description
	}
	if params.IsActive != nil {
		role.IsActive = *params.IsActive
	}

	now := time.Now().UTC()
	query := `
		UPDATE roles
		SET name = $1, description = $2, is_active = $3, updated_at = $4
		WHERE id = $5
	`
	if _, err := s.db.ExecContext(ctx, query, role.Name, role.Description, role.IsActive, now, roleID); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	role.UpdatedAt = now
	return role, nil
}

// RetireRole deactivates a role. Its grants and memberships are kept
// but stop contributing to resolution. Returns false when the role was
// already inactive.
func (s *Store) RetireRole(ctx context.Context, roleID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE roles SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_active = TRUE",
		time.Now().UTC(), roleID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to retire role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check retire result: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)", roleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role existence: %w", err)
	}
	if !exists {
		return false, ErrRoleNotFound
	}

	return false, nil
}

// GrantPermission adds a role-to-permission edge. Granting an existing
// edge is a no-op and returns false. Both endpoints must exist, active
// or not.
func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return false, err
	}
	if err := s.checkPermissionExists(ctx, permissionID); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, permissionID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to grant permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check grant result: %w", err)
	}

	return affected > 0, nil
}

// RevokePermission removes a role-to-permission edge. Revoking an
// absent edge is a no-op and returns false.
func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return false, err
	}
	if err := s.checkPermissionExists(ctx, permissionID); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2",
		roleID, permissionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check revoke result: %w", err)
	}

	return affected > 0, nil
}

// AssignRole adds a user-to-role edge. Assigning an existing edge is a
// no-op and returns false. Both endpoints must exist, active or not.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) (bool, error) {
	if err := s.checkUserExists(ctx, userID); err != nil {
		return false, err
	}
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, userID, roleID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to assign role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check assign result: %w", err)
	}

	return affected > 0, nil
}

// UnassignRole removes a user-to-role edge. Unassigning an absent edge
// is a no-op and returns false.
func (s *Store) UnassignRole(ctx context.Context, userID, roleID int64) (bool, error) {
	if err := s.checkUserExists(ctx, userID); err != nil {
		return false, err
	}
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2",
		userID, roleID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to unassign role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check unassign result: %w", err)
	}

	return affected > 0, nil
}

// PermissionsByRole lists the permissions granted to a role, active or
// not, ordered by code
func (s *Store) PermissionsByRole(ctx context.Context, roleID int64) ([]*GrantedPermission, error) {
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.code, p.name, p.is_active, rp.granted_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var perms []*GrantedPermission
	for rows.Next() {
		var perm GrantedPermission
		if err := rows.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.IsActive, &perm.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		perms = append(perms, &perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role permissions: %w", err)
	}

	return perms, nil
}

// RolesByUser lists the roles assigned to a user, active or not,
// ordered by name
func (s *Store) RolesByUser(ctx context.Context, userID int64) ([]*Role, error) {
	if err := s.checkUserExists(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		var description sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		if description.Valid {
			v := description.String
			role.Description = &v
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}

	return roles, nil
}

// UsersByRole lists the users holding a role, active or not, ordered
// by username
func (s *Store) UsersByRole(ctx context.Context, roleID int64) ([]*Member, error) {
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.is_active, ur.assigned_at
		FROM user_roles ur
		JOIN users u ON u.id = ur.user_id
		WHERE ur.role_id = $1
		ORDER BY u.username
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role users: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var member Member
		if err := rows.Scan(&member.ID, &member.Username, &member.IsActive, &member.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role user: %w", err)
		}
		members = append(members, &member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role users: %w", err)
	}

	return members, nil
}

// UserIDsByRole lists the IDs of users holding a role. Used for cache
// invalidation when a role's grants change.
func (s *Store) UserIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id",
		roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list role members: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role member: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role members: %w", err)
	}

	return userIDs, nil
}

func (s *Store) checkRoleExists(ctx context.Context, roleID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)", roleID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check role existence: %w", err)
	}
	if !exists {
		return ErrRoleNotFound
	}
	return nil
}

func (s *Store) checkUserExists(ctx context.Context, userID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) checkPermissionExists(ctx context.Context, permissionID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM permissions WHERE id = $1)", permissionID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check permission existence: %w", err)
	}
	if !exists {
		return ErrPermissionNotFound
	}
	return nil
}

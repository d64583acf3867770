package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinel-rbac/sentinel/pkg/storage"
)

// Store handles permission persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new permission store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create creates a new permission. Returns ErrConflict when the code is
// already taken, including by a retired permission.
func (s *Store) Create(ctx context.Context, perm *Permission) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM permissions WHERE code = $1)",
		perm.Code,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check permission code: %w", err)
	}
	if exists {
		return ErrConflict
	}

	query := `
		INSERT INTO permissions (code, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		perm.Code,
		perm.Name,
		perm.Description,
		true,
		now,
		now,
	).Scan(&perm.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}

	perm.IsActive = true
	perm.CreatedAt = now
	perm.UpdatedAt = now
	return nil
}

// GetByID retrieves a permission by ID
func (s *Store) GetByID(ctx context.Context, permID int64) (*Permission, error) {
	return s.getOne(ctx, "SELECT id, code, name, description, is_active, created_at, updated_at FROM permissions WHERE id = $1", permID)
}

// GetByCode retrieves a permission by code
func (s *Store) GetByCode(ctx context.Context, code string) (*Permission, error) {
	return s.getOne(ctx, "SELECT id, code, name, description, is_active, created_at, updated_at FROM permissions WHERE code = $1", code)
}

func (s *Store) getOne(ctx context.Context, query string, arg interface{}) (*Permission, error) {
	var perm Permission
	var description sql.NullString

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&perm.ID,
		&perm.Code,
		&perm.Name,
		&description,
		&perm.IsActive,
		&perm.CreatedAt,
		&perm.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	if description.Valid {
		v := description.String
		perm.Description = &v
	}

	return &perm, nil
}

// List retrieves permissions ordered by code. Retired permissions are
// included only when includeInactive is set.
func (s *Store) List(ctx context.Context, includeInactive bool) ([]*Permission, error) {
	query := `
		SELECT id, code, name, description, is_active, created_at, updated_at
		FROM permissions
	`
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY code"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*Permission
	for rows.Next() {
		var perm Permission
		var description sql.NullString

		if err := rows.Scan(
			&perm.ID,
			&perm.Code,
			&perm.Name,
			&description,
			&perm.IsActive,
			&perm.CreatedAt,
			&perm.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}

		if description.Valid {
			v := description.String
			perm.Description = &v
		}

		perms = append(perms, &perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}

	return perms, nil
}

// UpdateParams holds the mutable fields of a permission. The code is
// immutable once created; grants and menu rules reference it.
type UpdateParams struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// Update applies partial updates to a permission and returns the
// updated row
func (s *Store) Update(ctx context.Context, permID int64, params UpdateParams) (*Permission, error) {
	perm, err := s.GetByID(ctx, permID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		perm.Name = *params.Name
	}
	if params.Description != nil {
		perm.Description = params.Description
	}
	if params.IsActive != nil {
		perm.IsActive = *params.IsActive
	}

	now := time.Now().UTC()
	query := `
		UPDATE permissions
		SET name = $1, description = $2, is_active = $3, updated_at = $4
		WHERE id = $5
	`
	if _, err := s.db.ExecContext(ctx, query, perm.Name, perm.Description, perm.IsActive, now, permID); err != nil {
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}

	perm.UpdatedAt = now
	return perm, nil
}

// Retire deactivates a permission. Grants referencing it are kept but
// the resolver and menu filter stop honoring it. Returns false when the
// permission was already inactive.
func (s *Store) Retire(ctx context.Context, permID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE permissions SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_active = TRUE",
		time.Now().UTC(), permID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to retire permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check retire result: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM permissions WHERE id = $1)", permID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check permission existence: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}

	return false, nil
}

// Exists reports whether a permission row exists, active or not
func (s *Store) Exists(ctx context.Context, permID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM permissions WHERE id = $1)", permID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check permission existence: %w", err)
	}
	return exists, nil
}

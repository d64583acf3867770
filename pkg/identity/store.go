package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinel-rbac/sentinel/pkg/storage"
)

// Store handles user persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create creates a new user. Returns ErrConflict when the username is
// already taken, including by a retired user.
func (s *Store) Create(ctx context.Context, user *User) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)",
		user.Username,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return ErrConflict
	}

	query := `
		INSERT INTO users (username, password_hash, email, display_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Email,
		user.DisplayName,
		true,
		now,
		now,
	).Scan(&user.ID)
	if err != nil {
		// The pre-check races with concurrent inserts; the unique index
		// is the authority.
		if storage.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by ID
func (s *Store) GetByID(ctx context.Context, userID int64) (*User, error) {
	return s.getOne(ctx, "SELECT id, username, password_hash, email, display_name, is_active, created_at, updated_at FROM users WHERE id = $1", userID)
}

// GetByUsername retrieves a user by username
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.getOne(ctx, "SELECT id, username, password_hash, email, display_name, is_active, created_at, updated_at FROM users WHERE username = $1", username)
}

func (s *Store) getOne(ctx context.Context, query string, arg interface{}) (*User, error) {
	var user User
	var email, displayName sql.NullString

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&email,
		&displayName,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if email.Valid {
		v := email.String
		user.Email = &v
	}
	if displayName.Valid {
		v := displayName.String
		user.DisplayName = &v
	}

	return &user, nil
}

// List retrieves users ordered by ID. Retired users are included only
// when includeInactive is set.
func (s *Store) List(ctx context.Context, includeInactive bool) ([]*User, error) {
	query := `
		SELECT id, username, password_hash, email, display_name, is_active, created_at, updated_at
		FROM users
	`
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var user User
		var email, displayName sql.NullString

		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordHash,
			&email,
			&displayName,
			&user.IsActive,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		if email.Valid {
			v := email.String
			user.Email = &v
		}
		if displayName.Valid {
			v := displayName.String
			user.DisplayName = &v
		}

		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// UpdateParams holds the mutable fields of a user. Nil fields are left
// unchanged.
type UpdateParams struct {
	Username    *string
	Email       *string
	DisplayName *string
	IsActive    *bool
}

// Update applies partial updates to a user and returns the updated row
func (s *Store) Update(ctx context.Context, userID int64, params UpdateParams) (*User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if params.Username != nil && *params.Username != user.Username {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $2)",
			*params.Username, userID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if exists {
			return nil, ErrConflict
		}
		user.Username = *params.Username
	}
	if params.Email != nil {
		user.Email = params.Email
	}
	if params.DisplayName != nil {
		user.DisplayName = params.DisplayName
	}
	if params.IsActive != nil {
		user.IsActive = *params.IsActive
	}

	now := time.Now().UTC()
	query := `
		UPDATE users
		SET username = $1, email = $2, display_name = $3, is_active = $4, updated_at = $5
		WHERE id = $6
	`
	_, err = s.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.DisplayName,
		user.IsActive,
		now,
		userID,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	user.UpdatedAt = now
	return user, nil
}

// SetPassword stores a new password hash for a user
func (s *Store) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3",
		passwordHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check password update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Retire deactivates a user. The row is kept so memberships and audit
// history remain resolvable. Returns false when the user was already
// inactive.
func (s *Store) Retire(ctx context.Context, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_active = TRUE",
		time.Now().UTC(), userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to retire user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check retire result: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish "already retired" from "never existed"
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}

	return false, nil
}

// Exists reports whether a user row exists, active or not
func (s *Store) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

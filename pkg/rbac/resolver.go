package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sentinel-rbac/sentinel/pkg/observability"
)

// Resolver computes a user's effective permission set: the union of
// active permissions granted through the user's active roles. Retired
// roles and permissions stop contributing immediately; their edges are
// kept and spring back when the endpoint is reactivated.
type Resolver struct {
	store   *Store
	cache   *Cache
	metrics *observability.Metrics
}

// NewResolver creates a resolver. cache and metrics may be nil.
func NewResolver(store *Store, cache *Cache, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:   store,
		cache:   cache,
		metrics: metrics,
	}
}

// Resolve returns the effective permission codes for a user, sorted
// and deduplicated. A user with no roles, only retired roles, or an
// inactive account resolves to an empty set; an unknown user returns
// ErrUserNotFound.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (codes []string, err error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveResolve(start, err)
		}
	}()

	if r.cache != nil {
		if codes, ok := r.cache.Get(ctx, userID); ok {
			if r.metrics != nil {
				r.metrics.ResolveCacheHits.Inc()
			}
			return codes, nil
		}
		if r.metrics != nil {
			r.metrics.ResolveCacheMisses.Inc()
		}
	}

	codes, err = r.resolveFromStore(ctx, userID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, userID, codes)
	}

	return codes, nil
}

func (r *Resolver) resolveFromStore(ctx context.Context, userID int64) ([]string, error) {
	var isActive bool
	err := r.store.db.QueryRowContext(ctx,
		"SELECT is_active FROM users WHERE id = $1",
		userID,
	).Scan(&isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// Inactive users hold no effective permissions
	if !isActive {
		return []string{}, nil
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.is_active = TRUE
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id AND p.is_active = TRUE
		WHERE ur.user_id = $1
		ORDER BY p.code
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permission codes: %w", err)
	}

	return codes, nil
}

// HasPermission reports whether a user's effective set contains a code
func (r *Resolver) HasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	codes, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range codes {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

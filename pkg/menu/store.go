package menu

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store handles menu persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new menu store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const nodeColumns = "id, parent_id, name, icon, route_path, component_path, sort_order, permission_code, is_active, created_at, updated_at"

// Create creates a menu node. The parent, when given, must exist and
// be active.
func (s *Store) Create(ctx context.Context, node *Node) error {
	if node.ParentID != nil {
		if err := s.checkParent(ctx, *node.ParentID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO menus (parent_id, name, icon, route_path, component_path, sort_order, permission_code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		node.ParentID,
		node.Name,
		node.Icon,
		node.RoutePath,
		node.ComponentPath,
		node.SortOrder,
		node.PermissionCode,
		true,
		now,
		now,
	).Scan(&node.ID)
	if err != nil {
		return fmt.Errorf("failed to create menu: %w", err)
	}

	node.IsActive = true
	node.CreatedAt = now
	node.UpdatedAt = now
	return nil
}

// GetByID retrieves a menu node by ID
func (s *Store) GetByID(ctx context.Context, menuID int64) (*Node, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM menus WHERE id = $1", menuID)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu: %w", err)
	}
	return node, nil
}

// List retrieves menu nodes ordered by sort_order then ID. Retired
// nodes are included only when includeInactive is set.
func (s *Store) List(ctx context.Context, includeInactive bool) ([]*Node, error) {
	query := "SELECT " + nodeColumns + " FROM menus"
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY sort_order, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list menus: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// UpdateParams holds the mutable fields of a menu node. Nil fields are
// left unchanged. SetParent distinguishes "leave the parent alone"
// from "move to root".
type UpdateParams struct {
	SetParent      bool
	ParentID       *int64
	Name           *string
	Icon           *string
	RoutePath      *string
	ComponentPath  *string
	SortOrder      *int
	PermissionCode *string
}

// Update applies partial updates to a menu node and returns the
// updated row. Parent changes are validated against self-reference and
// ancestor cycles.
func (s *Store) Update(ctx context.Context, menuID int64, params UpdateParams) (*Node, error) {
	node, err := s.GetByID(ctx, menuID)
	if err != nil {
		return nil, err
	}

	if params.SetParent {
		if params.ParentID != nil {
			if *params.ParentID == menuID {
				return nil, ErrSelfParent
			}
			if err := s.checkParent(ctx, *params.ParentID); err != nil {
				return nil, err
			}
			if err := s.checkNoCycle(ctx, menuID, *params.ParentID); err != nil {
				return nil, err
			}
		}
		node.ParentID = params.ParentID
	}
	if params.Name != nil {
		node.Name = *params.Name
	}
	if params.Icon != nil {
		node.Icon = params.Icon
	}
	if params.RoutePath != nil {
		node.RoutePath = params.RoutePath
	}
	if params.ComponentPath != nil {
		node.ComponentPath = params.ComponentPath
	}
	if params.SortOrder != nil {
		node.SortOrder = *params.SortOrder
	}
	if params.PermissionCode != nil {
		node.PermissionCode = params.PermissionCode
	}

	now := time.Now().UTC()
	query := `
		UPDATE menus
		SET parent_id = $1, name = $2, icon = $3, route_path = $4, component_path = $5, sort_order = $6, permission_code = $7, updated_at = $8
		WHERE id = $9
	`
	if _, err := s.db.ExecContext(ctx, query,
		node.ParentID,
		node.Name,
		node.Icon,
		node.RoutePath,
		node.ComponentPath,
		node.SortOrder,
		node.PermissionCode,
		now,
		menuID,
	); err != nil {
		return nil, fmt.Errorf("failed to update menu: %w", err)
	}

	node.UpdatedAt = now
	return node, nil
}

// Retire deactivates a menu node and all of its active descendants in
// one transaction. Returns the number of nodes retired; zero means the
// node was already inactive.
func (s *Store) Retire(ctx context.Context, menuID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin retire transaction: %w", err)
	}
	defer tx.Rollback()

	var isActive bool
	err = tx.QueryRowContext(ctx, "SELECT is_active FROM menus WHERE id = $1", menuID).Scan(&isActive)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get menu: %w", err)
	}
	if !isActive {
		return 0, nil
	}

	// Frontier expansion over the parent edges; bounded by the node
	// count, so deep trees cannot overflow the stack.
	retired := map[int64]bool{menuID: true}
	frontier := []int64{menuID}
	for len(frontier) > 0 {
		children, err := activeChildren(ctx, tx, frontier)
		if err != nil {
			return 0, err
		}

		frontier = frontier[:0]
		for _, child := range children {
			if !retired[child] {
				retired[child] = true
				frontier = append(frontier, child)
			}
		}
	}

	ids := make([]int64, 0, len(retired))
	for id := range retired {
		ids = append(ids, id)
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"UPDATE menus SET is_active = FALSE, updated_at = $1 WHERE id IN (%s)",
		strings.Join(placeholders, ", "),
	)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to retire menus: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retire transaction: %w", err)
	}

	return len(ids), nil
}

// Accessible returns the active nodes visible to a holder of the given
// permission codes, as a flat list ordered by sort_order then ID.
// Nodes without a permission code are visible to everyone. A child can
// appear without its parent; assembling the tree is the caller's
// concern.
func (s *Store) Accessible(ctx context.Context, codes []string) ([]*Node, error) {
	query := "SELECT " + nodeColumns + " FROM menus WHERE is_active = TRUE AND permission_code IS NULL"
	args := make([]interface{}, 0, len(codes))
	if len(codes) > 0 {
		placeholders := make([]string, len(codes))
		for i, code := range codes {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, code)
		}
		query = "SELECT " + nodeColumns + " FROM menus WHERE is_active = TRUE AND (permission_code IS NULL OR permission_code IN (" +
			strings.Join(placeholders, ", ") + "))"
	}
	query += " ORDER BY sort_order, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessible menus: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

func (s *Store) checkParent(ctx context.Context, parentID int64) error {
	var isActive bool
	err := s.db.QueryRowContext(ctx, "SELECT is_active FROM menus WHERE id = $1", parentID).Scan(&isActive)
	if err == sql.ErrNoRows {
		return ErrInvalidParent
	}
	if err != nil {
		return fmt.Errorf("failed to check parent menu: %w", err)
	}
	if !isActive {
		return ErrInvalidParent
	}
	return nil
}

// checkNoCycle walks up from newParentID; reaching menuID means the
// change would close a cycle.
func (s *Store) checkNoCycle(ctx context.Context, menuID, newParentID int64) error {
	current := newParentID
	seen := map[int64]bool{}
	for {
		if current == menuID {
			return ErrCyclicParent
		}
		if seen[current] {
			// Pre-existing cycle in stored data; refuse to extend it
			return ErrCyclicParent
		}
		seen[current] = true

		var parent sql.NullInt64
		err := s.db.QueryRowContext(ctx, "SELECT parent_id FROM menus WHERE id = $1", current).Scan(&parent)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to walk menu ancestors: %w", err)
		}
		if !parent.Valid {
			return nil
		}
		current = parent.Int64
	}
}

func activeChildren(ctx context.Context, tx *sql.Tx, parents []int64) ([]int64, error) {
	placeholders := make([]string, len(parents))
	args := make([]interface{}, len(parents))
	for i, id := range parents {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT id FROM menus WHERE is_active = TRUE AND parent_id IN (%s)",
		strings.Join(placeholders, ", "),
	)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu children: %w", err)
	}
	defer rows.Close()

	var children []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan menu child: %w", err)
		}
		children = append(children, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menu children: %w", err)
	}

	return children, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var parentID sql.NullInt64
	var icon, routePath, componentPath, permissionCode sql.NullString

	err := row.Scan(
		&node.ID,
		&parentID,
		&node.Name,
		&icon,
		&routePath,
		&componentPath,
		&node.SortOrder,
		&permissionCode,
		&node.IsActive,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		v := parentID.Int64
		node.ParentID = &v
	}
	if icon.Valid {
		v := icon.String
		node.Icon = &v
	}
	if routePath.Valid {
		v := routePath.String
		node.RoutePath = &v
	}
	if componentPath.Valid {
		v := componentPath.String
		node.ComponentPath = &v
	}
	if permissionCode.Valid {
		v := permissionCode.String
		node.PermissionCode = &v
	}

	return &node, nil
}

func collectNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menus: %w", err)
	}
	return nodes, nil
}

package menu

import "time"

// Node represents a menu entry. Nodes form a forest through ParentID;
// a nil ParentID marks a root.
type Node struct {
	ID             int64     `json:"id"`
	ParentID       *int64    `json:"parent_id,omitempty"`
	Name           string    `json:"name"`
	Icon           *string   `json:"icon,omitempty"`
	RoutePath      *string   `json:"route_path,omitempty"`
	ComponentPath  *string   `json:"component_path,omitempty"`
	SortOrder      int       `json:"sort_order"`
	PermissionCode *string   `json:"permission_code,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

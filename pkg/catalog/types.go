// Package catalog manages the permission catalog. Permission codes are
// stable machine identifiers referenced by role grants and menu
// visibility rules; codes stay unique across active and retired rows.
package catalog

import "time"

// Permission represents a named capability in the catalog
type Permission struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Identity events
	EventTypeUserCreate     EventType = "identity.user_create"
	EventTypeUserUpdate     EventType = "identity.user_update"
	EventTypeUserRetire     EventType = "identity.user_retire"

	// Catalog events
	EventTypePermissionCreate EventType = "catalog.permission_create"
	EventTypePermissionUpdate EventType = "catalog.permission_update"
	EventTypePermissionRetire EventType = "catalog.permission_retire"

	// Role and edge events
	EventTypeRoleCreate       EventType = "rbac.role_create"
	EventTypeRoleUpdate       EventType = "rbac.role_update"
	EventTypeRoleRetire       EventType = "rbac.role_retire"
	EventTypePermissionGrant  EventType = "rbac.permission_grant"
	EventTypePermissionRevoke EventType = "rbac.permission_revoke"
	EventTypeRoleAssign       EventType = "rbac.role_assign"
	EventTypeRoleUnassign     EventType = "rbac.role_unassign"

	// Menu events
	EventTypeMenuCreate EventType = "menu.menu_create"
	EventTypeMenuUpdate EventType = "menu.menu_update"
	EventTypeMenuRetire EventType = "menu.menu_retire"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeMenu       ResourceType = "menu"
)

// Event represents a single audit log entry
type Event struct {
	ID           int64        `json:"id"`
	OccurredAt   time.Time    `json:"occurred_at"`
	EventType    EventType    `json:"event_type"`
	Status       EventStatus  `json:"status"`
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   *int64       `json:"resource_id,omitempty"`
	Actor        string       `json:"actor,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`
	Message      string       `json:"message,omitempty"`
}

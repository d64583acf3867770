package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
	"github.com/sentinel-rbac/sentinel/pkg/httputil"
)

// Handlers provides HTTP handlers for roles, grants, memberships, and
// permission resolution
type Handlers struct {
	store       *Store
	resolver    *Resolver
	cache       *Cache
	auditLogger audit.Logger
}

// NewHandlers creates new RBAC handlers. cache may be nil.
func NewHandlers(store *Store, resolver *Resolver, cache *Cache, auditLogger audit.Logger) *Handlers {
	return &Handlers{
		store:       store,
		resolver:    resolver,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Role management
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/roles/{id}", h.RetireRole).Methods("DELETE")

	// Role-to-permission grants
	router.HandleFunc("/roles/{id}/permissions", h.GrantPermission).Methods("POST")
	router.HandleFunc("/roles/{id}/permissions", h.ListRolePermissions).Methods("GET")
	router.HandleFunc("/roles/{id}/permissions/{permission_id}", h.RevokePermission).Methods("DELETE")
	router.HandleFunc("/roles/{id}/users", h.ListRoleUsers).Methods("GET")

	// User-to-role memberships
	router.HandleFunc("/users/{id}/roles", h.AssignRole).Methods("POST")
	router.HandleFunc("/users/{id}/roles", h.ListUserRoles).Methods("GET")
	router.HandleFunc("/users/{id}/roles/{role_id}", h.UnassignRole).Methods("DELETE")

	// Resolution
	router.HandleFunc("/users/{id}/permissions", h.GetUserPermissions).Methods("GET")
	router.HandleFunc("/check", h.CheckPermission).Methods("POST")
}

// CreateRole creates a new role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	role := &Role{Name: req.Name, Description: req.Description}
	if err := h.store.CreateRole(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			httputil.WriteConflictError(w, "role name already exists")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeRoleCreate, audit.ResourceTypeRole, &role.ID, audit.EventStatusSuccess, role.Name)
	httputil.WriteCreated(w, role)
}

// ListRoles lists roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	roles, err := h.store.ListRoles(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteStorageError(w)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}

	httputil.WriteSuccess(w, roles)
}

// GetRole retrieves a role by ID
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	httputil.WriteSuccess(w, role)
}

// UpdateRole applies partial updates to a role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
		IsActive    *bool   `json:"is_active,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Name != nil && *req.Name == "" {
		httputil.WriteValidationError(w, "name must not be empty")
		return
	}

	role, err := h.store.UpdateRole(ctx, roleID, RoleUpdateParams{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "role not found")
		case errors.Is(err, ErrConflict):
			httputil.WriteConflictError(w, "role name already exists")
		default:
			httputil.WriteStorageError(w)
		}
		return
	}

	// Activation state changes affect every member's effective set
	if req.IsActive != nil {
		h.invalidateRoleMembers(r, roleID)
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeRoleUpdate, audit.ResourceTypeRole, &roleID, audit.EventStatusSuccess, role.Name)
	httputil.WriteSuccess(w, role)
}

// RetireRole deactivates a role
func (h *Handlers) RetireRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	changed, err := h.store.RetireRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	if changed {
		h.invalidateRoleMembers(r, roleID)
		h.auditLogger.LogMutation(ctx, audit.EventTypeRoleRetire, audit.ResourceTypeRole, &roleID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

// GrantPermission adds a permission to a role
func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	var req struct {
		PermissionID int64 `json:"permission_id"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.PermissionID <= 0 {
		httputil.WriteValidationError(w, "permission_id is required")
		return
	}

	changed, err := h.store.GrantPermission(ctx, roleID, req.PermissionID)
	if err != nil {
		h.writeEdgeError(w, err)
		return
	}

	if changed {
		h.invalidateRoleMembers(r, roleID)
		h.auditLogger.LogMutation(ctx, audit.EventTypePermissionGrant, audit.ResourceTypeRole, &roleID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

// RevokePermission removes a permission from a role
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}
	permissionID, err := httputil.PathInt64(r, "permission_id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid permission id")
		return
	}

	changed, err := h.store.RevokePermission(ctx, roleID, permissionID)
	if err != nil {
		h.writeEdgeError(w, err)
		return
	}

	if changed {
		h.invalidateRoleMembers(r, roleID)
		h.auditLogger.LogMutation(ctx, audit.EventTypePermissionRevoke, audit.ResourceTypeRole, &roleID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

// ListRolePermissions lists the permissions granted to a role
func (h *Handlers) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	perms, err := h.store.PermissionsByRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}
	if perms == nil {
		perms = []*GrantedPermission{}
	}

	httputil.WriteSuccess(w, perms)
}

// ListRoleUsers lists the users holding a role
func (h *Handlers) ListRoleUsers(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	members, err := h.store.UsersByRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}
	if members == nil {
		members = []*Member{}
	}

	httputil.WriteSuccess(w, members)
}

// AssignRole adds a role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	var req struct {
		RoleID int64 `json:"role_id"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteValidationError(w, "role_id is required")
		return
	}

	changed, err := h.store.AssignRole(ctx, userID, req.RoleID)
	if err != nil {
		h.writeEdgeError(w, err)
		return
	}

	if changed {
		if h.cache != nil {
			h.cache.InvalidateUser(ctx, userID)
		}
		h.auditLogger.LogMutation(ctx, audit.EventTypeRoleAssign, audit.ResourceTypeUser, &userID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

// UnassignRole removes a role from a user
func (h *Handlers) UnassignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}
	roleID, err := httputil.PathInt64(r, "role_id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid role id")
		return
	}

	changed, err := h.store.UnassignRole(ctx, userID, roleID)
	if err != nil {
		h.writeEdgeError(w, err)
		return
	}

	if changed {
		if h.cache != nil {
			h.cache.InvalidateUser(ctx, userID)
		}
		h.auditLogger.LogMutation(ctx, audit.EventTypeRoleUnassign, audit.ResourceTypeUser, &userID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

// ListUserRoles lists the roles assigned to a user
func (h *Handlers) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	roles, err := h.store.RolesByUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}

	httputil.WriteSuccess(w, roles)
}

// GetUserPermissions returns a user's effective permission codes
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	codes, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     userID,
		"permissions": codes,
	})
}

// CheckPermission reports whether a user holds a permission code
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     int64  `json:"user_id"`
		Permission string `json:"permission"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.UserID <= 0 || req.Permission == "" {
		httputil.WriteValidationError(w, "user_id and permission are required")
		return
	}

	allowed, err := h.resolver.HasPermission(r.Context(), req.UserID, req.Permission)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"allowed": allowed})
}

// invalidateRoleMembers drops cached permission sets for every user
// holding the role
func (h *Handlers) invalidateRoleMembers(r *http.Request, roleID int64) {
	if h.cache == nil {
		return
	}
	userIDs, err := h.store.UserIDsByRole(r.Context(), roleID)
	if err != nil {
		// Stale entries expire with the cache TTL
		return
	}
	h.cache.InvalidateUsers(r.Context(), userIDs)
}

func (h *Handlers) writeEdgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFoundError(w, "role not found")
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	case errors.Is(err, ErrPermissionNotFound):
		httputil.WriteNotFoundError(w, "permission not found")
	default:
		httputil.WriteStorageError(w)
	}
}

package catalog

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
	"github.com/sentinel-rbac/sentinel/pkg/httputil"
)

// Handlers provides HTTP handlers for the permission catalog
type Handlers struct {
	store       *Store
	auditLogger audit.Logger
}

// NewHandlers creates new catalog handlers
func NewHandlers(store *Store, auditLogger audit.Logger) *Handlers {
	return &Handlers{store: store, auditLogger: auditLogger}
}

// RegisterRoutes registers catalog routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.CreatePermission).Methods("POST")
	router.HandleFunc("/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/permissions/{id}", h.GetPermission).Methods("GET")
	router.HandleFunc("/permissions/{id}", h.UpdatePermission).Methods("PUT")
	router.HandleFunc("/permissions/{id}", h.RetirePermission).Methods("DELETE")
}

// CreatePermission adds a permission to the catalog
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Code        string  `json:"code"`
		Name        string  `json:"name"`
		Description *string `json:"description,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Code == "" {
		httputil.WriteValidationError(w, "code is required")
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	perm := &Permission{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.Create(ctx, perm); err != nil {
		if errors.Is(err, ErrConflict) {
			httputil.WriteConflictError(w, "permission code already exists")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypePermissionCreate, audit.ResourceTypePermission, &perm.ID, audit.EventStatusSuccess, perm.Code)
	httputil.WriteCreated(w, perm)
}

// ListPermissions lists catalog entries
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	perms, err := h.store.List(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteStorageError(w)
		return
	}
	if perms == nil {
		perms = []*Permission{}
	}

	httputil.WriteSuccess(w, perms)
}

// GetPermission retrieves a permission by ID
func (h *Handlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	permID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid permission id")
		return
	}

	perm, err := h.store.GetByID(r.Context(), permID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "permission not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	httputil.WriteSuccess(w, perm)
}

// UpdatePermission applies partial updates to a permission
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid permission id")
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

	perm, err := h.store.Update(ctx, permID, UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "permission not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypePermissionUpdate, audit.ResourceTypePermission, &permID, audit.EventStatusSuccess, perm.Code)
	httputil.WriteSuccess(w, perm)
}

// RetirePermission deactivates a permission
func (h *Handlers) RetirePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid permission id")
		return
	}

	changed, err := h.store.Retire(ctx, permID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "permission not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	if changed {
		h.auditLogger.LogMutation(ctx, audit.EventTypePermissionRetire, audit.ResourceTypePermission, &permID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

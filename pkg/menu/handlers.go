// Package menu manages the navigation menu forest: node CRUD,
// cascading retirement, and permission-gated visibility filtering.
package menu

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
	"github.com/sentinel-rbac/sentinel/pkg/httputil"
	"github.com/sentinel-rbac/sentinel/pkg/observability"
	"github.com/sentinel-rbac/sentinel/pkg/rbac"
)

// Handlers provides HTTP handlers for menu management
type Handlers struct {
	store       *Store
	resolver    *rbac.Resolver
	auditLogger audit.Logger
	metrics     *observability.Metrics
}

// NewHandlers creates new menu handlers. metrics may be nil.
func NewHandlers(store *Store, resolver *rbac.Resolver, auditLogger audit.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		store:       store,
		resolver:    resolver,
		auditLogger: auditLogger,
		metrics:     metrics,
	}
}

// RegisterRoutes registers menu routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/menus", h.CreateMenu).Methods("POST")
	router.HandleFunc("/menus", h.ListMenus).Methods("GET")
	router.HandleFunc("/menus/accessible", h.AccessibleMenus).Methods("POST")
	router.HandleFunc("/menus/{id}", h.GetMenu).Methods("GET")
	router.HandleFunc("/menus/{id}", h.UpdateMenu).Methods("PUT")
	router.HandleFunc("/menus/{id}", h.RetireMenu).Methods("DELETE")
	router.HandleFunc("/users/{id}/menus", h.UserMenus).Methods("GET")
}

// CreateMenu creates a menu node
func (h *Handlers) CreateMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ParentID       *int64  `json:"parent_id,omitempty"`
		Name           string  `json:"name"`
		Icon           *string `json:"icon,omitempty"`
		RoutePath      *string `json:"route_path,omitempty"`
		ComponentPath  *string `json:"component_path,omitempty"`
		SortOrder      int     `json:"sort_order"`
		PermissionCode *string `json:"permission_code,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	node := &Node{
		ParentID:       req.ParentID,
		Name:           req.Name,
		Icon:           req.Icon,
		RoutePath:      req.RoutePath,
		ComponentPath:  req.ComponentPath,
		SortOrder:      req.SortOrder,
		PermissionCode: req.PermissionCode,
	}
	if err := h.store.Create(ctx, node); err != nil {
		if errors.Is(err, ErrInvalidParent) {
			httputil.WriteValidationError(w, "parent menu does not exist or is retired")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeMenuCreate, audit.ResourceTypeMenu, &node.ID, audit.EventStatusSuccess, node.Name)
	httputil.WriteCreated(w, node)
}

// ListMenus lists menu nodes
func (h *Handlers) ListMenus(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	nodes, err := h.store.List(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteStorageError(w)
		return
	}
	if nodes == nil {
		nodes = []*Node{}
	}

	httputil.WriteSuccess(w, nodes)
}

// GetMenu retrieves a menu node by ID
func (h *Handlers) GetMenu(w http.ResponseWriter, r *http.Request) {
	menuID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid menu id")
		return
	}

	node, err := h.store.GetByID(r.Context(), menuID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "menu not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	httputil.WriteSuccess(w, node)
}

// UpdateMenu applies partial updates to a menu node
func (h *Handlers) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	menuID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid menu id")
		return
	}

	var req struct {
		ParentID       *int64  `json:"parent_id"`
		MoveToRoot     bool    `json:"move_to_root,omitempty"`
		Name           *string `json:"name,omitempty"`
		Icon           *string `json:"icon,omitempty"`
		RoutePath      *string `json:"route_path,omitempty"`
		ComponentPath  *string `json:"component_path,omitempty"`
		SortOrder      *int    `json:"sort_order,omitempty"`
		PermissionCode *string `json:"permission_code,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Name != nil && *req.Name == "" {
		httputil.WriteValidationError(w, "name must not be empty")
		return
	}

	params := UpdateParams{
		Name:           req.Name,
		Icon:           req.Icon,
		RoutePath:      req.RoutePath,
		ComponentPath:  req.ComponentPath,
		SortOrder:      req.SortOrder,
		PermissionCode: req.PermissionCode,
	}
	if req.ParentID != nil {
		params.SetParent = true
		params.ParentID = req.ParentID
	} else if req.MoveToRoot {
		params.SetParent = true
	}

	node, err := h.store.Update(ctx, menuID, params)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httputil.WriteNotFoundError(w, "menu not found")
		case errors.Is(err, ErrInvalidParent):
			httputil.WriteValidationError(w, "parent menu does not exist or is retired")
		case errors.Is(err, ErrSelfParent):
			httputil.WriteValidationError(w, "menu cannot be its own parent")
		case errors.Is(err, ErrCyclicParent):
			httputil.WriteValidationError(w, "menu parent change would create a cycle")
		default:
			httputil.WriteStorageError(w)
		}
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeMenuUpdate, audit.ResourceTypeMenu, &menuID, audit.EventStatusSuccess, node.Name)
	httputil.WriteSuccess(w, node)
}

// RetireMenu deactivates a menu node and its descendants
func (h *Handlers) RetireMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	menuID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid menu id")
		return
	}

	retiredCount, err := h.store.Retire(ctx, menuID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "menu not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	if retiredCount > 0 {
		if h.metrics != nil {
			h.metrics.MenuRetireCascadeSize.Observe(float64(retiredCount))
		}
		h.auditLogger.LogMutation(ctx, audit.EventTypeMenuRetire, audit.ResourceTypeMenu, &menuID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]int{"retired_count": retiredCount})
}

// AccessibleMenus filters menus against an explicit permission set
func (h *Handlers) AccessibleMenus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	h.writeAccessible(w, r, req.Permissions)
}

// UserMenus returns the menus visible to a user's effective
// permission set
func (h *Handlers) UserMenus(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	codes, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.writeAccessible(w, r, codes)
}

func (h *Handlers) writeAccessible(w http.ResponseWriter, r *http.Request, codes []string) {
	nodes, err := h.store.Accessible(r.Context(), codes)
	if err != nil {
		httputil.WriteStorageError(w)
		return
	}
	if nodes == nil {
		nodes = []*Node{}
	}

	if h.metrics != nil {
		h.metrics.MenuAccessibleTotal.Inc()
	}
	httputil.WriteSuccess(w, nodes)
}

package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
	"github.com/sentinel-rbac/sentinel/pkg/httputil"
)

// Handlers provides HTTP handlers for user management
type Handlers struct {
	store       *Store
	hasher      *Hasher
	auditLogger audit.Logger
	invalidate  func(ctx context.Context, userID int64)
}

// NewHandlers creates new user handlers
func NewHandlers(store *Store, hasher *Hasher, auditLogger audit.Logger) *Handlers {
	return &Handlers{
		store:       store,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// SetCacheInvalidator registers a callback invoked when a user's
// activation state changes, so cached permission sets can be dropped.
func (h *Handlers) SetCacheInvalidator(fn func(ctx context.Context, userID int64)) {
	h.invalidate = fn
}

// RegisterRoutes registers user routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", h.UpdateUser).Methods("PUT")
	router.HandleFunc("/users/{id}", h.RetireUser).Methods("DELETE")
	router.HandleFunc("/users/{id}/password", h.SetPassword).Methods("PUT")
}

// CreateUser creates a new user
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Username    string  `json:"username"`
		Password    string  `json:"password,omitempty"`
		Email       *string `json:"email,omitempty"`
		DisplayName *string `json:"display_name,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Username == "" {
		httputil.WriteValidationError(w, "username is required")
		return
	}

	user := &User{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	if req.Password != "" {
		hash, err := h.hasher.Hash(req.Password)
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
		user.PasswordHash = hash
	}

	if err := h.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			httputil.WriteConflictError(w, "username already exists")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeUserCreate, audit.ResourceTypeUser, &user.ID, audit.EventStatusSuccess, user.Username)
	httputil.WriteCreated(w, user)
}

// ListUsers lists users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	users, err := h.store.List(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteStorageError(w)
		return
	}
	if users == nil {
		users = []*User{}
	}

	httputil.WriteSuccess(w, users)
}

// GetUser retrieves a user by ID
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	user, err := h.store.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	httputil.WriteSuccess(w, user)
}

// UpdateUser applies partial updates to a user
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	var req struct {
		Username    *string `json:"username,omitempty"`
		Email       *string `json:"email,omitempty"`
		DisplayName *string `json:"display_name,omitempty"`
		IsActive    *bool   `json:"is_active,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Username != nil && *req.Username == "" {
		httputil.WriteValidationError(w, "username must not be empty")
		return
	}

	user, err := h.store.Update(ctx, userID, UpdateParams{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		IsActive:    req.IsActive,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		case errors.Is(err, ErrConflict):
			httputil.WriteConflictError(w, "username already exists")
		default:
			httputil.WriteStorageError(w)
		}
		return
	}

	if req.IsActive != nil && h.invalidate != nil {
		h.invalidate(ctx, userID)
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeUserUpdate, audit.ResourceTypeUser, &userID, audit.EventStatusSuccess, user.Username)
	httputil.WriteSuccess(w, user)
}

// RetireUser deactivates a user
func (h *Handlers) RetireUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	changed, err := h.store.Retire(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	if changed {
		if h.invalidate != nil {
			h.invalidate(ctx, userID)
		}
		h.auditLogger.LogMutation(ctx, audit.EventTypeUserRetire, audit.ResourceTypeUser, &userID, audit.EventStatusSuccess, "")
	}
	httputil.WriteSuccess(w, map[string]bool{"changed": changed})
}

// SetPassword replaces a user's password
func (h *Handlers) SetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user id")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Password == "" {
		httputil.WriteValidationError(w, "password is required")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := h.store.SetPassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteStorageError(w)
		return
	}

	h.auditLogger.LogMutation(ctx, audit.EventTypeUserUpdate, audit.ResourceTypeUser, &userID, audit.EventStatusSuccess, "password changed")
	httputil.WriteNoContent(w)
}

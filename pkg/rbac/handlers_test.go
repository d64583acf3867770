package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
)

func setupTestRouter(t *testing.T) (*mux.Router, *Store) {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	resolver := NewResolver(store, nil, nil)
	handlers := NewHandlers(store, resolver, nil, audit.NewNopLogger())

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router, store
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_CreateRole(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, "POST", "/roles", map[string]string{"name": "admin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var role Role
	if err := json.Unmarshal(rec.Body.Bytes(), &role); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if role.Name != "admin" || role.ID == 0 {
		t.Errorf("Unexpected role in response: %+v", role)
	}

	// Duplicate name maps to 409
	rec = doJSON(t, router, "POST", "/roles", map[string]string{"name": "admin"})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate name, got %d", rec.Code)
	}
}

func TestHandlers_CreateRole_Validation(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, "POST", "/roles", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", rec.Code)
	}
}

func TestHandlers_GrantAndResolve(t *testing.T) {
	router, store := setupTestRouter(t)

	db := store.db
	userID := createTestUser(t, db, "alice")
	permID := createTestPermission(t, db, "report.view")
	roleID := createTestRole(t, db, "viewer")

	rec := doJSON(t, router, "POST", fmt.Sprintf("/roles/%d/permissions", roleID), map[string]int64{"permission_id": permID})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", fmt.Sprintf("/users/%d/roles", userID), map[string]int64{"role_id": roleID})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", fmt.Sprintf("/users/%d/permissions", userID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UserID      int64    `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Permissions) != 1 || resp.Permissions[0] != "report.view" {
		t.Errorf("Expected [report.view], got %v", resp.Permissions)
	}
}

func TestHandlers_GrantPermission_UnknownRole(t *testing.T) {
	router, store := setupTestRouter(t)

	permID := createTestPermission(t, store.db, "report.view")

	rec := doJSON(t, router, "POST", "/roles/9999/permissions", map[string]int64{"permission_id": permID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown role, got %d", rec.Code)
	}
}

func TestHandlers_ResolveUnknownUser(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, "GET", "/users/9999/permissions", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestHandlers_CheckPermission(t *testing.T) {
	router, store := setupTestRouter(t)

	db := store.db
	userID := createTestUser(t, db, "alice")
	permID := createTestPermission(t, db, "report.view")
	roleID := createTestRole(t, db, "viewer")
	grantAndAssign(t, db, userID, roleID, permID)

	rec := doJSON(t, router, "POST", "/check", map[string]interface{}{"user_id": userID, "permission": "report.view"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp["allowed"] {
		t.Error("Expected report.view to be allowed")
	}

	rec = doJSON(t, router, "POST", "/check", map[string]interface{}{"user_id": userID, "permission": "report.edit"})
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["allowed"] {
		t.Error("Expected report.edit to be denied")
	}
}

func TestHandlers_UnassignRole_NoChange(t *testing.T) {
	router, store := setupTestRouter(t)

	db := store.db
	userID := createTestUser(t, db, "alice")
	roleID := createTestRole(t, db, "viewer")

	rec := doJSON(t, router, "DELETE", fmt.Sprintf("/users/%d/roles/%d", userID, roleID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["changed"] {
		t.Error("Expected no change when unassigning an absent edge")
	}
}

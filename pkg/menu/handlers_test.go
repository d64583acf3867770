package menu

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
	handlers := NewHandlers(store, nil, audit.NewNopLogger(), nil)

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

func TestHandlers_CreateMenu(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, "POST", "/menus", map[string]interface{}{
		"name":            "Reports",
		"sort_order":      1,
		"permission_code": "report.view",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var node Node
	if err := json.Unmarshal(rec.Body.Bytes(), &node); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if node.ID == 0 || node.Name != "Reports" {
		t.Errorf("Unexpected node in response: %+v", node)
	}
}

func TestHandlers_CreateMenu_InvalidParent(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, "POST", "/menus", map[string]interface{}{
		"name":      "Orphan",
		"parent_id": 9999,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid parent, got %d", rec.Code)
	}
}

func TestHandlers_UpdateMenu_CycleRejected(t *testing.T) {
	router, store := setupTestRouter(t)

	a := createTestNode(t, store, "A", nil, nil, 1)
	b := createTestNode(t, store, "B", &a.ID, nil, 2)

	rec := doJSON(t, router, "PUT", fmt.Sprintf("/menus/%d", a.ID), map[string]interface{}{
		"parent_id": b.ID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for cycle, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlers_RetireMenu_ReturnsCascadeCount(t *testing.T) {
	router, store := setupTestRouter(t)

	root := createTestNode(t, store, "Root", nil, nil, 1)
	createTestNode(t, store, "Child", &root.ID, nil, 2)

	rec := doJSON(t, router, "DELETE", fmt.Sprintf("/menus/%d", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["retired_count"] != 2 {
		t.Errorf("Expected retired_count 2, got %d", resp["retired_count"])
	}
}

func TestHandlers_AccessibleMenus(t *testing.T) {
	router, store := setupTestRouter(t)

	createTestNode(t, store, "Home", nil, nil, 1)
	createTestNode(t, store, "Reports", nil, strPtr("report.view"), 2)
	createTestNode(t, store, "Admin", nil, strPtr("user.admin"), 3)

	rec := doJSON(t, router, "POST", "/menus/accessible", map[string]interface{}{
		"permissions": []string{"report.view"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var nodes []Node
	if err := json.Unmarshal(rec.Body.Bytes(), &nodes); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("Expected 2 visible nodes, got %d", len(nodes))
	}
}

func TestHandlers_GetMenu_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, "GET", "/menus/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

package rbac

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
)

func grantAndAssign(t *testing.T, db *sql.DB, userID, roleID int64, permIDs ...int64) {
	t.Helper()

	ctx := context.Background()
	store := NewStore(db)
	for _, permID := range permIDs {
		if _, err := store.GrantPermission(ctx, roleID, permID); err != nil {
			t.Fatalf("GrantPermission failed: %v", err)
		}
	}
	if _, err := store.AssignRole(ctx, userID, roleID); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
}

func TestResolver_UnionAcrossRoles(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	resolver := NewResolver(store, nil, nil)

	userID := createTestUser(t, db, "alice")
	viewPerm := createTestPermission(t, db, "report.view")
	editPerm := createTestPermission(t, db, "report.edit")
	adminPerm := createTestPermission(t, db, "user.admin")

	viewer := createTestRole(t, db, "viewer")
	editor := createTestRole(t, db, "editor")

	// report.view arrives through both roles; it must appear once
	grantAndAssign(t, db, userID, viewer, viewPerm)
	grantAndAssign(t, db, userID, editor, viewPerm, editPerm, adminPerm)

	codes, err := resolver.Resolve(ctx, userID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []string{"report.edit", "report.view", "user.admin"}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("Expected %v, got %v", want, codes)
	}
}

func TestResolver_UnknownUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	resolver := NewResolver(NewStore(db), nil, nil)

	_, err := resolver.Resolve(context.Background(), 9999)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestResolver_UserWithNoRoles(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	resolver := NewResolver(NewStore(db), nil, nil)
	userID := createTestUser(t, db, "alice")

	codes, err := resolver.Resolve(context.Background(), userID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("Expected empty set, got %v", codes)
	}
}

func TestResolver_InactiveUserResolvesEmpty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	resolver := NewResolver(NewStore(db), nil, nil)

	userID := createTestUser(t, db, "alice")
	permID := createTestPermission(t, db, "report.view")
	roleID := createTestRole(t, db, "viewer")
	grantAndAssign(t, db, userID, roleID, permID)

	if _, err := db.Exec("UPDATE users SET is_active = 0 WHERE id = ?", userID); err != nil {
		t.Fatalf("Failed to deactivate user: %v", err)
	}

	codes, err := resolver.Resolve(ctx, userID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("Expected empty set for inactive user, got %v", codes)
	}
}

func TestResolver_RetiredRoleStopsContributing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	resolver := NewResolver(store, nil, nil)

	userID := createTestUser(t, db, "alice")
	permID := createTestPermission(t, db, "report.view")
	roleID := createTestRole(t, db, "viewer")
	grantAndAssign(t, db, userID, roleID, permID)

	if _, err := store.RetireRole(ctx, roleID); err != nil {
		t.Fatalf("RetireRole failed: %v", err)
	}

	codes, err := resolver.Resolve(ctx, userID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("Expected empty set after role retirement, got %v", codes)
	}

	// Reactivation brings the grants back; no edges were deleted
	if _, err := store.UpdateRole(ctx, roleID, RoleUpdateParams{IsActive: boolPtr(true)}); err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}

	codes, err = resolver.Resolve(ctx, userID)
	if err != nil {
		t.Fatalf("Resolve after reactivation failed: %v", err)
	}
	if len(codes) != 1 || codes[0] != "report.view" {
		t.Errorf("Expected [report.view] after reactivation, got %v", codes)
	}
}

func TestResolver_RetiredPermissionStopsContributing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	resolver := NewResolver(NewStore(db), nil, nil)

	userID := createTestUser(t, db, "alice")
	viewPerm := createTestPermission(t, db, "report.view")
	editPerm := createTestPermission(t, db, "report.edit")
	roleID := createTestRole(t, db, "viewer")
	grantAndAssign(t, db, userID, roleID, viewPerm, editPerm)

	if _, err := db.Exec("UPDATE permissions SET is_active = 0 WHERE id = ?", editPerm); err != nil {
		t.Fatalf("Failed to retire permission: %v", err)
	}

	codes, err := resolver.Resolve(ctx, userID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(codes) != 1 || codes[0] != "report.view" {
		t.Errorf("Expected [report.view], got %v", codes)
	}
}

func TestResolver_HasPermission(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	resolver := NewResolver(NewStore(db), nil, nil)

	userID := createTestUser(t, db, "alice")
	permID := createTestPermission(t, db, "report.view")
	roleID := createTestRole(t, db, "viewer")
	grantAndAssign(t, db, userID, roleID, permID)

	allowed, err := resolver.HasPermission(ctx, userID, "report.view")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !allowed {
		t.Error("Expected report.view to be allowed")
	}

	allowed, err = resolver.HasPermission(ctx, userID, "report.edit")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if allowed {
		t.Error("Expected report.edit to be denied")
	}
}

func boolPtr(v bool) *bool { return &v }

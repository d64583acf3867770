package catalog

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A second connection would see a different in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	require.NoError(t, err)

	return db
}

func TestStore_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	perm := &Permission{Code: "report.view", Name: "View reports"}
	require.NoError(t, store.Create(ctx, perm))
	assert.NotZero(t, perm.ID)
	assert.True(t, perm.IsActive)

	byID, err := store.GetByID(ctx, perm.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.view", byID.Code)

	byCode, err := store.GetByCode(ctx, "report.view")
	require.NoError(t, err)
	assert.Equal(t, perm.ID, byCode.ID)
}

func TestStore_Create_DuplicateCode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	require.NoError(t, store.Create(ctx, &Permission{Code: "report.view", Name: "View"}))
	err := store.Create(ctx, &Permission{Code: "report.view", Name: "View again"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_Create_RetiredCodeStillTaken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	perm := &Permission{Code: "report.view", Name: "View"}
	require.NoError(t, store.Create(ctx, perm))
	_, err := store.Retire(ctx, perm.ID)
	require.NoError(t, err)

	err = store.Create(ctx, &Permission{Code: "report.view", Name: "View"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_List_OrderedByCode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	require.NoError(t, store.Create(ctx, &Permission{Code: "user.admin", Name: "Admin"}))
	require.NoError(t, store.Create(ctx, &Permission{Code: "report.view", Name: "View"}))

	perms, err := store.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "report.view", perms[0].Code)
	assert.Equal(t, "user.admin", perms[1].Code)
}

func TestStore_Update(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	perm := &Permission{Code: "report.view", Name: "View"}
	require.NoError(t, store.Create(ctx, perm))

	newName := "View reports"
	updated, err := store.Update(ctx, perm.ID, UpdateParams{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "View reports", updated.Name)
	assert.Equal(t, "report.view", updated.Code, "code is immutable")
}

func TestStore_Retire_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	perm := &Permission{Code: "report.view", Name: "View"}
	require.NoError(t, store.Create(ctx, perm))

	changed, err := store.Retire(ctx, perm.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Retire(ctx, perm.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.Retire(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

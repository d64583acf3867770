package identity

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
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			email TEXT,
			display_name TEXT,
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

	email := "alice@example.com"
	user := &User{Username: "alice", Email: &email}
	require.NoError(t, store.Create(ctx, user))
	assert.NotZero(t, user.ID)
	assert.True(t, user.IsActive)

	byID, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	require.NotNil(t, byID.Email)
	assert.Equal(t, email, *byID.Email)

	byName, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
}

func TestStore_Create_DuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	require.NoError(t, store.Create(ctx, &User{Username: "alice"}))
	err := store.Create(ctx, &User{Username: "alice"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_Create_RetiredUsernameStillTaken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	user := &User{Username: "alice"}
	require.NoError(t, store.Create(ctx, user))
	_, err := store.Retire(ctx, user.ID)
	require.NoError(t, err)

	err = store.Create(ctx, &User{Username: "alice"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := NewStore(db).GetByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	alice := &User{Username: "alice"}
	bob := &User{Username: "bob"}
	require.NoError(t, store.Create(ctx, alice))
	require.NoError(t, store.Create(ctx, bob))
	_, err := store.Retire(ctx, bob.ID)
	require.NoError(t, err)

	active, err := store.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Username)

	all, err := store.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_Update(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	user := &User{Username: "alice"}
	require.NoError(t, store.Create(ctx, user))

	newName := "alice2"
	display := "Alice"
	updated, err := store.Update(ctx, user.ID, UpdateParams{Username: &newName, DisplayName: &display})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	require.NotNil(t, updated.DisplayName)
	assert.Equal(t, "Alice", *updated.DisplayName)
}

func TestStore_Update_UsernameConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	alice := &User{Username: "alice"}
	bob := &User{Username: "bob"}
	require.NoError(t, store.Create(ctx, alice))
	require.NoError(t, store.Create(ctx, bob))

	taken := "alice"
	_, err := store.Update(ctx, bob.ID, UpdateParams{Username: &taken})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_Retire_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	user := &User{Username: "alice"}
	require.NoError(t, store.Create(ctx, user))

	changed, err := store.Retire(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Retire(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, changed, "second retire reports no change")

	_, err = store.Retire(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetPassword(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	user := &User{Username: "alice"}
	require.NoError(t, store.Create(ctx, user))

	require.NoError(t, store.SetPassword(ctx, user.ID, "new-hash"))

	got, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	err = store.SetPassword(ctx, 9999, "hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasher_HashAndVerify(t *testing.T) {
	hasher := NewHasher(4)

	hash, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, hasher.Verify(hash, "s3cret"))
	assert.False(t, hasher.Verify(hash, "wrong"))
}

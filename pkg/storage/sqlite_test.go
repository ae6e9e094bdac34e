package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmercier/keepsake/pkg/auth"
)

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	record, err := store.GetToken(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, record, "missing record reads as nil, not an error")

	saved := sampleRecord("alice")
	require.NoError(t, store.SaveToken(ctx, saved))

	record, err = store.GetToken(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, saved.ID, record.ID)
	assert.Equal(t, saved.RandomPasswordHash, record.RandomPasswordHash)
	assert.False(t, record.IsExpired)
	assert.Equal(t, saved.ExpirationDate.Unix(), record.ExpirationDate.Unix())

	t.Run("save replaces per credential", func(t *testing.T) {
		replacement := sampleRecord("alice")
		require.NoError(t, store.SaveToken(ctx, replacement))
		record, err := store.GetToken(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, replacement.ID, record.ID)
	})

	t.Run("update by id", func(t *testing.T) {
		record, err := store.GetToken(ctx, "alice")
		require.NoError(t, err)
		record.IsExpired = true
		record.UpdatedAt = time.Now()
		require.NoError(t, store.UpdateToken(ctx, record))

		record, err = store.GetToken(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, record.IsExpired)
	})

	t.Run("delete by id", func(t *testing.T) {
		record, err := store.GetToken(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, store.DeleteToken(ctx, record.ID))

		record, err = store.GetToken(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func TestSQLiteStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	stale := sampleRecord("stale")
	stale.IsExpired = true
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.SaveToken(ctx, stale))

	fresh := sampleRecord("fresh")
	require.NoError(t, store.SaveToken(ctx, fresh))

	purged, err := store.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	record, err := store.GetToken(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestSQLiteStore_Users(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	created, err := store.CreateUser(ctx, "alice", "alice@example.com", "$2a$04$hash")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	t.Run("lookup by username", func(t *testing.T) {
		user, err := store.GetUser(ctx, "username", "alice")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "$2a$04$hash", user.PasswordHash())
	})

	t.Run("lookup by email", func(t *testing.T) {
		user, err := store.GetUser(ctx, "email", "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user)
	})

	t.Run("unknown user", func(t *testing.T) {
		user, err := store.GetUser(ctx, "username", "bob")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("field outside the whitelist", func(t *testing.T) {
		_, err := store.GetUser(ctx, "password_hash", "x")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnknownField)
	})
}

func TestSQLiteStore_SatisfiesInterfaces(t *testing.T) {
	store := setupSQLite(t)
	var _ auth.TokenStore = store
	var _ auth.UserLookup = store
	var _ Purger = store
}

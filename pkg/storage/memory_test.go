package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmercier/keepsake/pkg/auth"
)

func sampleRecord(credential string) *auth.Record {
	now := time.Now()
	return &auth.Record{
		ID:                 uuid.NewString(),
		Credential:         credential,
		RandomPasswordHash: "$2a$04$examplehash",
		ExpirationDate:     now.Add(72 * time.Hour),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestMemoryStore_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Absent credential reads as (nil, nil)
	record, err := store.GetToken(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, record)

	saved := sampleRecord("alice")
	require.NoError(t, store.SaveToken(ctx, saved))

	record, err = store.GetToken(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, saved.ID, record.ID)
	assert.Equal(t, saved.RandomPasswordHash, record.RandomPasswordHash)

	// Saving again replaces the record for the credential
	replacement := sampleRecord("alice")
	require.NoError(t, store.SaveToken(ctx, replacement))
	record, err = store.GetToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, record.ID)

	// Update by ID
	record.IsExpired = true
	require.NoError(t, store.UpdateToken(ctx, record))
	record, err = store.GetToken(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, record.IsExpired)

	// Delete by ID
	require.NoError(t, store.DeleteToken(ctx, record.ID))
	record, err = store.GetToken(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.SaveToken(ctx, sampleRecord("alice")))

	first, err := store.GetToken(ctx, "alice")
	require.NoError(t, err)
	first.IsExpired = true

	second, err := store.GetToken(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, second.IsExpired, "mutating a returned record must not touch the store")
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale := sampleRecord("stale")
	stale.IsExpired = true
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.SaveToken(ctx, stale))

	fresh := sampleRecord("fresh")
	require.NoError(t, store.SaveToken(ctx, fresh))

	recentlyExpired := sampleRecord("recent")
	recentlyExpired.IsExpired = true
	require.NoError(t, store.SaveToken(ctx, recentlyExpired))

	purged, err := store.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// Only the stale expired record is gone
	record, _ := store.GetToken(ctx, "stale")
	assert.Nil(t, record)
	record, _ = store.GetToken(ctx, "fresh")
	assert.NotNil(t, record)
	record, _ = store.GetToken(ctx, "recent")
	assert.NotNil(t, record, "recently expired records stay within retention")
}

func TestMemoryStore_GetUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AddUser(&User{Username: "alice", Email: "alice@example.com", HashedPassword: "h1"})

	user, err := store.GetUser(ctx, "username", "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "h1", user.PasswordHash())

	user, err = store.GetUser(ctx, "email", "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)

	user, err = store.GetUser(ctx, "username", "bob")
	require.NoError(t, err)
	assert.Nil(t, user)
}

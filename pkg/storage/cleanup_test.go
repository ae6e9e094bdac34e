package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanup_InvalidSchedule(t *testing.T) {
	_, err := NewCleanup(NewMemoryStore(), "not a cron spec", time.Hour, nil)
	assert.Error(t, err)
}

func TestCleanup_Run(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale := sampleRecord("stale")
	stale.IsExpired = true
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.SaveToken(ctx, stale))
	require.NoError(t, store.SaveToken(ctx, sampleRecord("fresh")))

	cleanup, err := NewCleanup(store, "@hourly", 24*time.Hour, nil)
	require.NoError(t, err)

	purged, err := cleanup.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	record, _ := store.GetToken(ctx, "fresh")
	assert.NotNil(t, record)
}

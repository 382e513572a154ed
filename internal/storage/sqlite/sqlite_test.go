package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"ezbridge/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestSQLiteStorage_Token(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	// Empty database yields no token and no error
	token, expiresAt, err := storage.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.True(t, expiresAt.IsZero())

	// Save and load
	wantExpiry := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	err = storage.SaveToken(ctx, "at.token-1", wantExpiry)
	require.NoError(t, err)

	token, expiresAt, err = storage.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at.token-1", token)
	assert.True(t, expiresAt.Equal(wantExpiry))

	// Saving again replaces the previous token
	newExpiry := wantExpiry.Add(24 * time.Hour)
	err = storage.SaveToken(ctx, "at.token-2", newExpiry)
	require.NoError(t, err)

	token, expiresAt, err = storage.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at.token-2", token)
	assert.True(t, expiresAt.Equal(newExpiry))
}

func TestSQLiteStorage_Events(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	// Empty history
	events, err := storage.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		oldState, newState := core.PrivacyOff, core.PrivacyOn
		if i%2 == 1 {
			oldState, newState = core.PrivacyOn, core.PrivacyOff
		}
		err := storage.AppendEvent(ctx, core.ChangeEvent{
			ID:        fmt.Sprintf("evt_%d", i),
			Serial:    "C0123456",
			Name:      "Living Room",
			OldState:  oldState,
			NewState:  newState,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	// Newest first
	events, err = storage.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "evt_2", events[0].ID)
	assert.Equal(t, "evt_0", events[2].ID)
	assert.Equal(t, core.PrivacyOff, events[0].OldState)
	assert.Equal(t, "Living Room", events[0].Name)

	// Limit applies
	events, err = storage.RecentEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// Default limit on zero
	events, err = storage.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSQLiteStorage_DuplicateEventID(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	evt := core.ChangeEvent{
		ID:        "evt_dup",
		Serial:    "C0123456",
		Name:      "Living Room",
		OldState:  core.PrivacyOff,
		NewState:  core.PrivacyOn,
		Timestamp: time.Now(),
	}

	require.NoError(t, storage.AppendEvent(ctx, evt))
	assert.Error(t, storage.AppendEvent(ctx, evt))
}

package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"warden/internal/blacklist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestBlacklistStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).BlacklistStore()

	t.Run("add and look up entry", func(t *testing.T) {
		entry := blacklist.Entry{
			UserID:      "user-1",
			ServerID:    "server-1",
			ModeratorID: "mod-1",
			CreatedAt:   time.Now(),
			Reason:      "Spamming invites",
		}

		err := store.Add(ctx, entry)
		require.NoError(t, err)

		got, err := store.IsBlocked(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "server-1", got.ServerID)
		assert.Equal(t, "mod-1", got.ModeratorID)
		assert.Equal(t, "Spamming invites", got.Reason)
	})

	t.Run("unknown user is not blocked", func(t *testing.T) {
		got, err := store.IsBlocked(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("re-add only overwrites the reason", func(t *testing.T) {
		created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		require.NoError(t, store.Add(ctx, blacklist.Entry{
			UserID:      "user-2",
			ServerID:    "origin",
			ModeratorID: "mod-1",
			CreatedAt:   created,
			Reason:      "first reason",
		}))

		// Second add from a different server with a new reason.
		require.NoError(t, store.Add(ctx, blacklist.Entry{
			UserID:      "user-2",
			ServerID:    "elsewhere",
			ModeratorID: "mod-2",
			CreatedAt:   time.Now(),
			Reason:      "updated reason",
		}))

		got, err := store.IsBlocked(ctx, "user-2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "origin", got.ServerID)
		assert.Equal(t, "mod-1", got.ModeratorID)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.Equal(t, "updated reason", got.Reason)
	})

	t.Run("re-add with empty reason keeps the old one", func(t *testing.T) {
		require.NoError(t, store.Add(ctx, blacklist.Entry{
			UserID: "user-3",
			Reason: "kept",
		}))
		require.NoError(t, store.Add(ctx, blacklist.Entry{
			UserID: "user-3",
			Reason: "",
		}))

		got, err := store.IsBlocked(ctx, "user-3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "kept", got.Reason)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Add(ctx, blacklist.Entry{UserID: "user-4"}))
		require.NoError(t, store.Remove(ctx, "user-4"))

		got, err := store.IsBlocked(ctx, "user-4")
		require.NoError(t, err)
		assert.Nil(t, got)

		// Removing an absent user is not an error.
		require.NoError(t, store.Remove(ctx, "user-4"))
	})

	t.Run("count and list", func(t *testing.T) {
		count, err := store.Count(ctx)
		require.NoError(t, err)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, count)
	})
}

func TestBlacklistSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	require.NoError(t, store.BlacklistStore().Add(ctx, blacklist.Entry{
		UserID: "user-1",
		Reason: "persisted",
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(Options{Path: dbPath})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.BlacklistStore().IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "persisted", got.Reason)
}

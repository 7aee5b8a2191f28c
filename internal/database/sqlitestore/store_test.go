package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"warden/internal/blacklist"
	"warden/internal/news"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestSQLiteBlacklistStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).BlacklistStore()

	t.Run("add and look up entry", func(t *testing.T) {
		require.NoError(t, store.Add(ctx, blacklist.Entry{
			UserID:      "user-1",
			ServerID:    "server-1",
			ModeratorID: "mod-1",
			CreatedAt:   time.Now(),
			Reason:      "spam",
		}))

		got, err := store.IsBlocked(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "server-1", got.ServerID)
		assert.Equal(t, "spam", got.Reason)
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
			Reason:      "first",
		}))
		require.NoError(t, store.Add(ctx, blacklist.Entry{
			UserID:      "user-2",
			ServerID:    "elsewhere",
			ModeratorID: "mod-2",
			CreatedAt:   time.Now(),
			Reason:      "updated",
		}))

		got, err := store.IsBlocked(ctx, "user-2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "origin", got.ServerID)
		assert.Equal(t, "mod-1", got.ModeratorID)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.Equal(t, "updated", got.Reason)
	})

	t.Run("re-add with empty reason keeps the old one", func(t *testing.T) {
		require.NoError(t, store.Add(ctx, blacklist.Entry{UserID: "user-3", Reason: "kept"}))
		require.NoError(t, store.Add(ctx, blacklist.Entry{UserID: "user-3", Reason: ""}))

		got, err := store.IsBlocked(ctx, "user-3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "kept", got.Reason)
	})

	t.Run("remove, count, list", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, "user-3"))
		got, err := store.IsBlocked(ctx, "user-3")
		require.NoError(t, err)
		assert.Nil(t, got)

		count, err := store.Count(ctx)
		require.NoError(t, err)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, count)
	})
}

func TestSQLiteServerStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).ServerStore()

	t.Run("unknown server has default flags", func(t *testing.T) {
		flags, err := store.ServerFlags(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, flags.Trusted)
		assert.False(t, flags.Strict)
		assert.Empty(t, flags.NotifyChannelID)
	})

	t.Run("set and load flags", func(t *testing.T) {
		require.NoError(t, store.SetTrusted(ctx, "s1", true))
		require.NoError(t, store.SetStrict(ctx, "s1", true))
		require.NoError(t, store.SetChannel(ctx, "s1", "chan-1"))

		flags, err := store.ServerFlags(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, flags.Trusted)
		assert.True(t, flags.Strict)
		assert.Equal(t, "chan-1", flags.NotifyChannelID)
	})

	t.Run("all-default row is pruned", func(t *testing.T) {
		require.NoError(t, store.SetTrusted(ctx, "s2", true))
		require.NoError(t, store.SetTrusted(ctx, "s2", false))

		flags, err := store.ServerFlags(ctx, "s2")
		require.NoError(t, err)
		assert.False(t, flags.Trusted)
	})
}

func TestSQLiteNewsStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).NewsStore()

	require.NoError(t, store.PutSubscription(ctx, news.Subscription{
		Tag: "releases", ChannelID: "c1", WebhookID: "h1", Token: "t1",
	}))
	require.NoError(t, store.PutSubscription(ctx, news.Subscription{
		Tag: "releases", ChannelID: "c2", WebhookID: "h2", Token: "t2",
	}))
	require.NoError(t, store.PutSubscription(ctx, news.Subscription{
		Tag: "other", ChannelID: "c3", WebhookID: "h3", Token: "t3",
	}))

	got, err := store.GetSubscription(ctx, "releases", "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h1", got.WebhookID)

	subs, err := store.ListByTag(ctx, "releases")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	require.NoError(t, store.DeleteSubscription(ctx, "releases", "c1"))
	got, err = store.GetSubscription(ctx, "releases", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.BlacklistStore().Add(ctx, blacklist.Entry{UserID: "u1", Reason: "persisted"}))
	require.NoError(t, store.ServerStore().SetTrusted(ctx, "s1", true))
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.BlacklistStore().IsBlocked(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "persisted", got.Reason)

	flags, err := reopened.ServerStore().ServerFlags(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, flags.Trusted)
}

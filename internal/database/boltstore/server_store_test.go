package boltstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestServerStore(t *testing.T) {
	ctx := context.Background()
	db := setupTestStore(t)
	store := db.ServerStore()

	t.Run("unknown server has default flags", func(t *testing.T) {
		flags, err := store.ServerFlags(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, flags.Trusted)
		assert.False(t, flags.Strict)
		assert.Empty(t, flags.NotifyChannelID)
	})

	t.Run("set and load flags", func(t *testing.T) {
		require.NoError(t, store.SetTrusted(ctx, "server-1", true))
		require.NoError(t, store.SetStrict(ctx, "server-1", true))
		require.NoError(t, store.SetChannel(ctx, "server-1", "chan-1"))

		flags, err := store.ServerFlags(ctx, "server-1")
		require.NoError(t, err)
		assert.True(t, flags.Trusted)
		assert.True(t, flags.Strict)
		assert.Equal(t, "chan-1", flags.NotifyChannelID)
	})

	t.Run("flags are independent per server", func(t *testing.T) {
		require.NoError(t, store.SetTrusted(ctx, "server-2", true))

		flags, err := store.ServerFlags(ctx, "server-2")
		require.NoError(t, err)
		assert.True(t, flags.Trusted)
		assert.False(t, flags.Strict)
	})

	t.Run("all-default document is pruned", func(t *testing.T) {
		require.NoError(t, store.SetTrusted(ctx, "server-3", true))
		require.NoError(t, store.SetTrusted(ctx, "server-3", false))

		err := db.DB().View(func(tx *bolt.Tx) error {
			data := tx.Bucket(BucketServers).Get([]byte("server-3"))
			assert.Nil(t, data)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("stored document omits default fields", func(t *testing.T) {
		require.NoError(t, store.SetStrict(ctx, "server-4", true))

		err := db.DB().View(func(tx *bolt.Tx) error {
			data := tx.Bucket(BucketServers).Get([]byte("server-4"))
			require.NotNil(t, data)

			var doc map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &doc))
			assert.Contains(t, doc, "strict")
			assert.NotContains(t, doc, "trusted")
			assert.NotContains(t, doc, "channel")
			return nil
		})
		require.NoError(t, err)
	})
}

func TestServerFlagsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	require.NoError(t, store.ServerStore().SetTrusted(ctx, "server-1", true))
	require.NoError(t, store.Close())

	reopened, err := Open(Options{Path: dbPath})
	require.NoError(t, err)
	defer reopened.Close()

	flags, err := reopened.ServerStore().ServerFlags(ctx, "server-1")
	require.NoError(t, err)
	assert.True(t, flags.Trusted)
}

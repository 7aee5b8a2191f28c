package boltstore

import (
	"context"
	"testing"

	"warden/internal/news"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewsStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).NewsStore()

	t.Run("put and get subscription", func(t *testing.T) {
		sub := news.Subscription{
			Tag:       "releases",
			ChannelID: "chan-1",
			WebhookID: "hook-1",
			Token:     "token-1",
		}
		require.NoError(t, store.PutSubscription(ctx, sub))

		got, err := store.GetSubscription(ctx, "releases", "chan-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hook-1", got.WebhookID)
		assert.Equal(t, "token-1", got.Token)
	})

	t.Run("absent subscription is nil", func(t *testing.T) {
		got, err := store.GetSubscription(ctx, "releases", "chan-none")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list by tag only matches the tag", func(t *testing.T) {
		require.NoError(t, store.PutSubscription(ctx, news.Subscription{
			Tag: "events", ChannelID: "chan-2", WebhookID: "hook-2",
		}))
		require.NoError(t, store.PutSubscription(ctx, news.Subscription{
			Tag: "events", ChannelID: "chan-3", WebhookID: "hook-3",
		}))
		// A tag that is a prefix of another must not leak into its listing.
		require.NoError(t, store.PutSubscription(ctx, news.Subscription{
			Tag: "eventsextra", ChannelID: "chan-4", WebhookID: "hook-4",
		}))

		subs, err := store.ListByTag(ctx, "events")
		require.NoError(t, err)
		require.Len(t, subs, 2)
		for _, sub := range subs {
			assert.Equal(t, "events", sub.Tag)
		}
	})

	t.Run("delete subscription", func(t *testing.T) {
		require.NoError(t, store.PutSubscription(ctx, news.Subscription{
			Tag: "temp", ChannelID: "chan-5", WebhookID: "hook-5",
		}))
		require.NoError(t, store.DeleteSubscription(ctx, "temp", "chan-5"))

		got, err := store.GetSubscription(ctx, "temp", "chan-5")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

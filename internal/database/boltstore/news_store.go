package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"warden/internal/news"

	bolt "go.etcd.io/bbolt"
)

// NewsStore provides persistent storage for news broadcast subscriptions.
type NewsStore struct {
	db *bolt.DB
}

var _ news.Store = (*NewsStore)(nil)

func subscriptionKey(tag, channelID string) []byte {
	return []byte(tag + ":" + channelID)
}

// PutSubscription stores a channel's subscription to a tag.
func (s *NewsStore) PutSubscription(ctx context.Context, sub news.Subscription) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketNewsWebhooks)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketNewsWebhooks)
		}

		data, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("failed to marshal subscription: %w", err)
		}
		return bucket.Put(subscriptionKey(sub.Tag, sub.ChannelID), data)
	})
}

// GetSubscription retrieves one subscription, or nil if absent.
func (s *NewsStore) GetSubscription(ctx context.Context, tag, channelID string) (*news.Subscription, error) {
	var sub *news.Subscription

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketNewsWebhooks)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(subscriptionKey(tag, channelID))
		if data == nil {
			return nil
		}

		sub = &news.Subscription{}
		return json.Unmarshal(data, sub)
	})

	return sub, err
}

// DeleteSubscription removes a channel's subscription to a tag.
func (s *NewsStore) DeleteSubscription(ctx context.Context, tag, channelID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketNewsWebhooks)
		if bucket == nil {
			return nil
		}

		return bucket.Delete(subscriptionKey(tag, channelID))
	})
}

// ListByTag returns every subscription for a tag.
func (s *NewsStore) ListByTag(ctx context.Context, tag string) ([]news.Subscription, error) {
	var subs []news.Subscription

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketNewsWebhooks)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		prefix := []byte(tag + ":")

		for k, v := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cursor.Next() {
			var sub news.Subscription
			if err := json.Unmarshal(v, &sub); err != nil {
				continue
			}
			subs = append(subs, sub)
		}

		return nil
	})

	return subs, err
}

// hasPrefix checks if a byte slice has a given prefix.
func hasPrefix(s, prefix []byte) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if s[i] != b {
			return false
		}
	}
	return true
}

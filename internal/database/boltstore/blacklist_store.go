package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"warden/internal/blacklist"

	bolt "go.etcd.io/bbolt"
)

// BlacklistStore provides persistent storage for blacklist entries.
type BlacklistStore struct {
	db *bolt.DB
}

var _ blacklist.Store = (*BlacklistStore)(nil)

// IsBlocked returns the entry for a user, or nil if none exists.
func (s *BlacklistStore) IsBlocked(ctx context.Context, userID string) (*blacklist.Entry, error) {
	var entry *blacklist.Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketBlacklist)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(userID))
		if data == nil {
			return nil
		}

		entry = &blacklist.Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist entry: %w", err)
	}

	return entry, nil
}

// Add upserts an entry. An existing entry keeps its origin, moderator and
// timestamp; only the reason may be overwritten, and only by a non-empty one.
func (s *BlacklistStore) Add(ctx context.Context, entry blacklist.Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketBlacklist)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketBlacklist)
		}

		if data := bucket.Get([]byte(entry.UserID)); data != nil {
			var existing blacklist.Entry
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to unmarshal blacklist entry: %w", err)
			}
			if entry.Reason == "" || entry.Reason == existing.Reason {
				return nil
			}
			existing.Reason = entry.Reason
			entry = existing
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal blacklist entry: %w", err)
		}
		return bucket.Put([]byte(entry.UserID), data)
	})
}

// Remove deletes a user's entry.
func (s *BlacklistStore) Remove(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketBlacklist)
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(userID))
	})
}

// Count returns the number of blacklisted users.
func (s *BlacklistStore) Count(ctx context.Context) (int, error) {
	var count int

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketBlacklist)
		if bucket == nil {
			return nil
		}

		count = bucket.Stats().KeyN
		return nil
	})

	return count, err
}

// List returns every blacklist entry.
func (s *BlacklistStore) List(ctx context.Context) ([]blacklist.Entry, error) {
	var entries []blacklist.Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketBlacklist)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var entry blacklist.Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})

	return entries, err
}

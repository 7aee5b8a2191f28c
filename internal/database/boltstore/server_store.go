package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"warden/internal/registry"

	bolt "go.etcd.io/bbolt"
)

// serverRecord is the persisted per-server document. All fields are optional;
// a missing document means all defaults.
type serverRecord struct {
	Channel string `json:"channel,omitempty"`
	Trusted bool   `json:"trusted,omitempty"`
	Strict  bool   `json:"strict,omitempty"`
}

// ServerStore provides persistent storage for per-server moderation settings.
// Settings survive restarts and are kept independently of live connection
// state: a server can be trusted while disconnected.
type ServerStore struct {
	db *bolt.DB
}

var _ registry.FlagSource = (*ServerStore)(nil)

// ServerFlags loads the persisted flags for a server. A server with no
// stored document gets zero-value flags.
func (s *ServerStore) ServerFlags(ctx context.Context, serverID string) (registry.Flags, error) {
	var rec serverRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketServers)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(serverID))
		if data == nil {
			return nil
		}

		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return registry.Flags{}, fmt.Errorf("failed to load server flags: %w", err)
	}

	return registry.Flags{
		Trusted:         rec.Trusted,
		Strict:          rec.Strict,
		NotifyChannelID: rec.Channel,
	}, nil
}

// update applies a mutation to a server's document, creating it if absent
// and deleting it when it drops back to all defaults.
func (s *ServerStore) update(serverID string, mutate func(*serverRecord)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketServers)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketServers)
		}

		var rec serverRecord
		if data := bucket.Get([]byte(serverID)); data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal server record: %w", err)
			}
		}

		mutate(&rec)

		if rec == (serverRecord{}) {
			return bucket.Delete([]byte(serverID))
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal server record: %w", err)
		}
		return bucket.Put([]byte(serverID), data)
	})
}

// SetTrusted persists the trusted flag for a server.
func (s *ServerStore) SetTrusted(ctx context.Context, serverID string, trusted bool) error {
	return s.update(serverID, func(rec *serverRecord) { rec.Trusted = trusted })
}

// SetStrict persists the strict flag for a server.
func (s *ServerStore) SetStrict(ctx context.Context, serverID string, strict bool) error {
	return s.update(serverID, func(rec *serverRecord) { rec.Strict = strict })
}

// SetChannel persists the notification channel for a server. An empty
// channel id unsets it.
func (s *ServerStore) SetChannel(ctx context.Context, serverID, channelID string) error {
	return s.update(serverID, func(rec *serverRecord) { rec.Channel = channelID })
}

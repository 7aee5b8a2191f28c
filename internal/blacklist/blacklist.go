// Package blacklist defines the shared user blacklist: the single
// authoritative signal that a user must be banned on every connected server.
package blacklist

import (
	"context"
	"time"
)

// AutoModerator is the moderator id recorded on entries created by
// automatic spam escalation rather than a human command.
const AutoModerator = "automod"

// Entry is one blacklisted user. Entries are created by a moderator command
// or by automatic spam escalation and deleted only by an explicit command.
type Entry struct {
	UserID      string    `json:"user_id"`
	ServerID    string    `json:"server_id"` // origin server of the decision
	ModeratorID string    `json:"moderator_id"`
	CreatedAt   time.Time `json:"created_at"`
	Reason      string    `json:"reason,omitempty"`
}

// Store is the persistence interface for blacklist entries. No in-memory
// cache sits in front of it: every enforcement check re-reads storage so a
// stale ban can never be served.
// Implementations must be safe for concurrent use.
type Store interface {
	// IsBlocked returns the entry for a user, or nil if none exists.
	IsBlocked(ctx context.Context, userID string) (*Entry, error)

	// Add upserts an entry. If the user is already listed, only the reason
	// may change, and only when the new reason is non-empty.
	Add(ctx context.Context, entry Entry) error

	// Remove deletes a user's entry.
	Remove(ctx context.Context, userID string) error

	// Count returns the number of blacklisted users.
	Count(ctx context.Context) (int, error)

	// List returns every entry.
	List(ctx context.Context) ([]Entry, error)
}

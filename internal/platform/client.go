package platform

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the platform cannot resolve the requested
// entity (unknown user, expired invite, already-removed ban).
var ErrNotFound = errors.New("platform: not found")

// ErrForbidden is returned when the platform rejects an action for
// permission or role-hierarchy reasons.
var ErrForbidden = errors.New("platform: forbidden")

// Client is the outbound platform API surface used by the moderation core.
// Implementations must be safe for concurrent use.
type Client interface {
	// Ban bans a user on a server, pruning retentionDays of messages.
	Ban(ctx context.Context, serverID, userID, reason string, retentionDays int) error

	// Unban lifts a ban. Returns ErrNotFound if the user was not banned there.
	Unban(ctx context.Context, serverID, userID string) error

	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// BulkDeleteMessages removes up to 100 recent messages from a channel.
	BulkDeleteMessages(ctx context.Context, channelID string, count int) error

	// ResolveInvite looks up the target server of an invite code.
	ResolveInvite(ctx context.Context, code string) (*Invite, error)

	// SendMessage posts plain text to a channel.
	SendMessage(ctx context.Context, channelID, content string) error

	// SendDirectMessage posts plain text to a user's DM channel.
	SendDirectMessage(ctx context.Context, userID, content string) error

	// FetchUser retrieves a user by id.
	FetchUser(ctx context.Context, userID string) (*User, error)

	// FetchMember retrieves a user's membership on a server.
	FetchMember(ctx context.Context, serverID, userID string) (*Member, error)

	// CreateWebhook creates a webhook on a channel.
	CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error)

	// DeleteWebhook removes a webhook.
	DeleteWebhook(ctx context.Context, webhookID string) error

	// ExecuteWebhook posts content through a webhook.
	ExecuteWebhook(ctx context.Context, webhookID, token, content string) error
}

// Package platform defines the boundary to the chat platform's REST API:
// the entities the moderation core works with and the Client interface it
// calls for every outbound side effect (bans, message deletion, notifications,
// invite resolution, webhooks).
package platform

import "time"

// User is a platform account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Member is a user's membership on a specific server.
type Member struct {
	User     User      `json:"user"`
	ServerID string    `json:"server_id"`
	JoinedAt time.Time `json:"joined_at"`
	RoleIDs  []string  `json:"roles"`
}

// Message is an incoming chat message.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	ServerID  string `json:"server_id"`
	Author    Member `json:"author"`
	Content   string `json:"content"`
}

// Invite is a resolved invite link.
type Invite struct {
	Code     string `json:"code"`
	ServerID string `json:"server_id"`
}

// Webhook is a channel webhook used for news broadcasts.
type Webhook struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Token     string `json:"token"`
}

// Mention returns the canonical inline mention for a user id.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// Package gateway consumes the platform's real-time event stream over a
// WebSocket connection and dispatches typed events into the moderation core.
// Nothing else in the process reads gateway events directly.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"warden/internal/platform"
	"warden/internal/registry"
)

// Event types carried on the stream.
const (
	EventServerCreate = "SERVER_CREATE"
	EventServerUpdate = "SERVER_UPDATE"
	EventServerDelete = "SERVER_DELETE"
	EventRoleCreate   = "ROLE_CREATE"
	EventRoleUpdate   = "ROLE_UPDATE"
	EventRoleDelete   = "ROLE_DELETE"
	EventMemberAdd    = "MEMBER_ADD"
	EventMemberRemove = "MEMBER_REMOVE"
	EventMessage      = "MESSAGE_CREATE"
)

// Event is the stream envelope.
type Event struct {
	Type string          `json:"t"`
	Seq  int64           `json:"s"`
	Data json.RawMessage `json:"d"`
}

// ServerSnapshot is the payload of server create/update events.
type ServerSnapshot struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	OwnerID     string         `json:"owner_id"`
	MemberCount int            `json:"member_count"`
	IconHash    string         `json:"icon,omitempty"`
	Roles       []registry.Role `json:"roles"`
}

// Snapshot converts the payload to the registry's input type.
func (s *ServerSnapshot) Snapshot() registry.Snapshot {
	return registry.Snapshot{
		ID:          s.ID,
		Name:        s.Name,
		OwnerID:     s.OwnerID,
		MemberCount: s.MemberCount,
		IconHash:    s.IconHash,
		Roles:       s.Roles,
	}
}

// ServerDelete is the payload of server delete events.
type ServerDelete struct {
	ID string `json:"id"`
}

// RoleEvent is the payload of role create/update/delete events.
type RoleEvent struct {
	ServerID string        `json:"server_id"`
	Role     registry.Role `json:"role"`
}

// MemberAdd is the payload of member join events.
type MemberAdd struct {
	ServerID string        `json:"server_id"`
	User     platform.User `json:"user"`
	JoinedAt time.Time     `json:"joined_at"`
	RoleIDs  []string      `json:"roles"`
}

// Member converts the payload to a platform member.
func (m *MemberAdd) Member() platform.Member {
	return platform.Member{
		User:     m.User,
		ServerID: m.ServerID,
		JoinedAt: m.JoinedAt,
		RoleIDs:  m.RoleIDs,
	}
}

// MemberRemove is the payload of member leave events.
type MemberRemove struct {
	ServerID string        `json:"server_id"`
	User     platform.User `json:"user"`
}

// Handler receives decoded gateway events. Registry-shaped events are
// delivered synchronously in stream order; member joins and messages may be
// delivered concurrently.
type Handler interface {
	HandleServerUpsert(ctx context.Context, snap registry.Snapshot)
	HandleServerDelete(ctx context.Context, serverID string)
	HandleRoleDelta(ctx context.Context, serverID string, role registry.Role, op registry.RoleOp)
	HandleMemberAdd(ctx context.Context, member platform.Member)
	HandleMemberRemove(ctx context.Context, serverID, userID string)
	HandleMessage(ctx context.Context, msg platform.Message)
}

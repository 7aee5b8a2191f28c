// Package registry maintains the in-memory cache of every connected server:
// identity, role table, member count, and the two persisted moderation flags.
// It is rebuilt from gateway snapshot events; nothing else reads the gateway
// stream directly.
package registry

import "warden/internal/platform"

// Capability is a permission bit in a role's permission mask.
type Capability uint64

const (
	CapabilityAdministrator  Capability = 1 << 0
	CapabilitySendMessages   Capability = 1 << 1
	CapabilityManageMessages Capability = 1 << 2
	CapabilityBanMembers     Capability = 1 << 3
	CapabilityManageServer   Capability = 1 << 4
	CapabilityManageWebhooks Capability = 1 << 5
)

// Role is a server role with its permission mask.
type Role struct {
	ID          string     `json:"id"`
	Permissions Capability `json:"permissions"`
}

// RoleOp describes a role-table mutation from a gateway role event.
type RoleOp int

const (
	RoleAdd RoleOp = iota
	RoleUpdate
	RoleRemove
)

// Server is the cached state of one connected server. Name, owner, roles and
// member count are volatile cache rebuilt from gateway events; Trusted,
// Strict and NotifyChannelID are loaded from persisted storage.
type Server struct {
	ID          string
	Name        string
	OwnerID     string
	MemberCount int
	IconHash    string
	Roles       map[string]Role

	// Trusted exempts this server's invites from spam scoring and its
	// users from residency scrutiny elsewhere.
	Trusted bool

	// Strict punishes a first invite-link offense immediately instead of
	// only warning.
	Strict bool

	// NotifyChannelID is the optional moderator notification channel.
	NotifyChannelID string
}

// Snapshot is the gateway's view of a server, applied via Registry.Upsert.
type Snapshot struct {
	ID          string
	Name        string
	OwnerID     string
	MemberCount int
	IconHash    string
	Roles       []Role
}

// HasCapability reports whether a member holds the given capability on this
// server. The owner holds everything; otherwise any of the member's roles
// must carry the capability or the administrator bit.
func (s *Server) HasCapability(member *platform.Member, cap Capability) bool {
	if member.User.ID == s.OwnerID {
		return true
	}
	for _, roleID := range member.RoleIDs {
		role, ok := s.Roles[roleID]
		if !ok {
			continue
		}
		if role.Permissions&CapabilityAdministrator != 0 || role.Permissions&cap != 0 {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never share the registry's maps.
func (s *Server) clone() *Server {
	cp := *s
	cp.Roles = make(map[string]Role, len(s.Roles))
	for id, role := range s.Roles {
		cp.Roles[id] = role
	}
	return &cp
}

package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Flags are the persisted per-server settings that survive restarts.
type Flags struct {
	Trusted         bool
	Strict          bool
	NotifyChannelID string
}

// FlagSource loads persisted per-server flags. A server can carry flags
// while disconnected, so the source is independent of live gateway state.
type FlagSource interface {
	ServerFlags(ctx context.Context, serverID string) (Flags, error)
}

// Registry is the in-memory cache of connected servers. All mutation goes
// through gateway-driven calls; other components only read through Get/All.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Server

	flags FlagSource

	// onConnect fires exactly once per distinct server id while it stays
	// connected. Duplicate upserts for a known id do not re-fire.
	onConnect func(*Server)
}

// New creates a registry backed by the given flag source.
func New(flags FlagSource) *Registry {
	return &Registry{
		servers: make(map[string]*Server),
		flags:   flags,
	}
}

// SetOnConnect registers the callback fired when a new server id appears.
func (r *Registry) SetOnConnect(fn func(*Server)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onConnect = fn
}

// Upsert applies a gateway server snapshot. For a previously unknown id the
// persisted flags are loaded before the record becomes visible, and the
// connect callback fires. For a known id only the volatile fields update.
// A flag-load failure still connects the server, with default flags; the
// error is returned so the caller can surface it to operators.
func (r *Registry) Upsert(ctx context.Context, snap Snapshot) (*Server, error) {
	roles := make(map[string]Role, len(snap.Roles))
	for _, role := range snap.Roles {
		roles[role.ID] = role
	}

	r.mu.Lock()
	existing, known := r.servers[snap.ID]
	if known {
		existing.Name = snap.Name
		existing.OwnerID = snap.OwnerID
		existing.MemberCount = snap.MemberCount
		existing.IconHash = snap.IconHash
		existing.Roles = roles
		cp := existing.clone()
		r.mu.Unlock()
		return cp, nil
	}
	r.mu.Unlock()

	// Load persisted flags outside the lock; storage may be slow.
	flags, flagErr := r.flags.ServerFlags(ctx, snap.ID)
	if flagErr != nil {
		flagErr = fmt.Errorf("load flags for server %s: %w", snap.ID, flagErr)
	}

	srv := &Server{
		ID:              snap.ID,
		Name:            snap.Name,
		OwnerID:         snap.OwnerID,
		MemberCount:     snap.MemberCount,
		IconHash:        snap.IconHash,
		Roles:           roles,
		Trusted:         flags.Trusted,
		Strict:          flags.Strict,
		NotifyChannelID: flags.NotifyChannelID,
	}

	r.mu.Lock()
	// Another handler may have raced us here; the first insert wins and
	// the callback still fires at most once for this id.
	if raced, ok := r.servers[snap.ID]; ok {
		raced.Name = snap.Name
		raced.OwnerID = snap.OwnerID
		raced.MemberCount = snap.MemberCount
		raced.IconHash = snap.IconHash
		raced.Roles = roles
		cp := raced.clone()
		r.mu.Unlock()
		return cp, flagErr
	}
	r.servers[snap.ID] = srv
	callback := r.onConnect
	cp := srv.clone()
	r.mu.Unlock()

	log.Info().Str("server", snap.ID).Str("name", snap.Name).
		Bool("trusted", srv.Trusted).Bool("strict", srv.Strict).
		Msg("registry: server connected")

	if callback != nil {
		callback(cp.clone())
	}
	return cp, flagErr
}

// Remove drops a server from the cache on a server-leave event.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[serverID]; ok {
		delete(r.servers, serverID)
		log.Info().Str("server", serverID).Msg("registry: server removed")
	}
}

// Get returns a copy of the cached server, or nil if unknown.
func (r *Registry) Get(serverID string) *Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.servers[serverID]
	if !ok {
		return nil
	}
	return srv.clone()
}

// All returns copies of every connected server.
func (r *Registry) All() []*Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Server, 0, len(r.servers))
	for _, srv := range r.servers {
		out = append(out, srv.clone())
	}
	return out
}

// Count returns the number of connected servers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// ApplyRoleDelta mutates one server's role table from a gateway role event.
func (r *Registry) ApplyRoleDelta(serverID string, role Role, op RoleOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[serverID]
	if !ok {
		return
	}
	switch op {
	case RoleAdd, RoleUpdate:
		srv.Roles[role.ID] = role
	case RoleRemove:
		delete(srv.Roles, role.ID)
	}
}

// AdjustMemberCount applies a join/leave delta, clamped at zero so
// out-of-order delivery never produces a negative count.
func (r *Registry) AdjustMemberCount(serverID string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[serverID]
	if !ok {
		return
	}
	srv.MemberCount += delta
	if srv.MemberCount < 0 {
		srv.MemberCount = 0
	}
}

// SetFlags updates the cached flags after a moderator command persisted them.
func (r *Registry) SetFlags(serverID string, update func(*Flags)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[serverID]
	if !ok {
		return
	}
	flags := Flags{Trusted: srv.Trusted, Strict: srv.Strict, NotifyChannelID: srv.NotifyChannelID}
	update(&flags)
	srv.Trusted = flags.Trusted
	srv.Strict = flags.Strict
	srv.NotifyChannelID = flags.NotifyChannelID
}

// Package bot routes gateway events through the moderation pipeline.
// For messages the order is fixed: blacklist enforcement, then spam
// detection, then command dispatch. Any stage may consume the event.
package bot

import (
	"context"
	"fmt"

	"warden/internal/commands"
	"warden/internal/enforce"
	"warden/internal/gateway"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/registry"
	"warden/internal/spam"

	"github.com/rs/zerolog/log"
)

// Bot implements gateway.Handler.
type Bot struct {
	botUserID string

	registry *registry.Registry
	engine   *enforce.Engine
	detector *spam.Detector
	commands *commands.Handler
	notifier *notify.Notifier
}

var _ gateway.Handler = (*Bot)(nil)

// New wires the event router. It registers the registry's connect callback
// so operators see each server exactly once when it appears.
func New(botUserID string, reg *registry.Registry, engine *enforce.Engine,
	detector *spam.Detector, cmds *commands.Handler, notifier *notify.Notifier) *Bot {
	b := &Bot{
		botUserID: botUserID,
		registry:  reg,
		engine:    engine,
		detector:  detector,
		commands:  cmds,
		notifier:  notifier,
	}
	reg.SetOnConnect(func(srv *registry.Server) {
		b.notifier.ServiceLog(context.Background(), fmt.Sprintf(
			"Server connected: %s (%s), %d members.", srv.Name, srv.ID, srv.MemberCount))
	})
	return b
}

// HandleServerUpsert refreshes the registry. A server whose persisted flags
// could not be loaded still connects with default flags; operators are told
// so a trusted or strict server is never silently demoted.
func (b *Bot) HandleServerUpsert(ctx context.Context, snap registry.Snapshot) {
	if _, err := b.registry.Upsert(ctx, snap); err != nil {
		log.Error().Err(err).Str("server", snap.ID).Msg("bot: failed to load server flags")
		b.notifier.ServiceLog(ctx, fmt.Sprintf(
			"Could not load stored settings for server %s (%s): %v. Running with defaults.",
			snap.Name, snap.ID, err))
	}
}

func (b *Bot) HandleServerDelete(ctx context.Context, serverID string) {
	b.registry.Remove(serverID)
}

func (b *Bot) HandleRoleDelta(ctx context.Context, serverID string, role registry.Role, op registry.RoleOp) {
	b.registry.ApplyRoleDelta(serverID, role, op)
}

// HandleMemberAdd checks every joining member against the blacklist.
func (b *Bot) HandleMemberAdd(ctx context.Context, member platform.Member) {
	b.registry.AdjustMemberCount(member.ServerID, 1)

	if _, err := b.engine.Check(ctx, &member); err != nil {
		log.Error().Err(err).Str("user", member.User.ID).Str("server", member.ServerID).
			Msg("bot: enforcement check failed on join")
	}
}

func (b *Bot) HandleMemberRemove(ctx context.Context, serverID, userID string) {
	b.registry.AdjustMemberCount(serverID, -1)
}

// HandleMessage runs the full pipeline over one message. A blocked or
// spam-consumed message never reaches command dispatch.
func (b *Bot) HandleMessage(ctx context.Context, msg platform.Message) {
	if msg.Content == "" || msg.Author.User.ID == "" {
		return
	}
	if msg.Author.User.ID == b.botUserID {
		return
	}

	outcome, err := b.engine.Check(ctx, &msg.Author)
	if err != nil {
		// Storage failure: the user cannot be proven clean, so the
		// message is not processed further.
		log.Error().Err(err).Str("user", msg.Author.User.ID).
			Msg("bot: enforcement check failed on message")
		return
	}
	if outcome == enforce.Blocked {
		return
	}

	if b.detector.Inspect(ctx, &msg) {
		return
	}

	b.commands.Dispatch(ctx, &msg)
}

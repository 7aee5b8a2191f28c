// Package commands implements the moderator command surface: blacklist
// management, per-server flag toggles, news subscriptions, and a few
// utilities. Commands only run for messages that enforcement and spam
// detection both let through.
package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"warden/internal/blacklist"
	"warden/internal/news"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/propagate"
	"warden/internal/registry"

	"github.com/rs/zerolog/log"
)

// FlagStore persists per-server settings changed by commands.
type FlagStore interface {
	SetTrusted(ctx context.Context, serverID string, trusted bool) error
	SetStrict(ctx context.Context, serverID string, strict bool) error
	SetChannel(ctx context.Context, serverID, channelID string) error
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// mentionedIDs extracts user ids from inline mentions. Parsing is manual
// because a mentioned user may no longer be a member anywhere.
func mentionedIDs(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// stripMentions removes inline mentions, leaving the free-text remainder.
func stripMentions(content string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(content, ""))
}

// Handler parses and executes prefix commands.
type Handler struct {
	prefix        string
	retentionDays int

	store      blacklist.Store
	flagStore  FlagStore
	registry   *registry.Registry
	client     platform.Client
	notifier   *notify.Notifier
	dispatcher *propagate.Dispatcher
	news       *news.Service
}

// New creates a command handler.
func New(prefix string, retentionDays int, store blacklist.Store, flagStore FlagStore,
	reg *registry.Registry, client platform.Client, notifier *notify.Notifier,
	dispatcher *propagate.Dispatcher, newsSvc *news.Service) *Handler {
	return &Handler{
		prefix:        prefix,
		retentionDays: retentionDays,
		store:         store,
		flagStore:     flagStore,
		registry:      reg,
		client:        client,
		notifier:      notifier,
		dispatcher:    dispatcher,
		news:          newsSvc,
	}
}

// Dispatch parses a message for a command and executes it. It returns true
// if the message carried a recognized command.
func (h *Handler) Dispatch(ctx context.Context, msg *platform.Message) bool {
	if !strings.HasPrefix(msg.Content, h.prefix) {
		return false
	}

	srv := h.registry.Get(msg.ServerID)
	if srv == nil {
		return false
	}

	rest := msg.Content[len(h.prefix):]
	name := rest
	args := ""
	if i := strings.IndexByte(rest, ' '); i > 0 {
		name, args = rest[:i], strings.TrimSpace(rest[i+1:])
	}

	var run func(ctx context.Context, srv *registry.Server, msg *platform.Message, args string)
	switch strings.ToLower(name) {
	case "add":
		run = h.add
	case "remove":
		run = h.remove
	case "info":
		run = h.info
	case "stats":
		run = h.stats
	case "cleanup":
		run = h.cleanup
	case "trust":
		run = h.trust
	case "strict":
		run = h.strict
	case "channel":
		run = h.channel
	case "news":
		run = h.newsCmd
	case "help":
		run = h.help
	default:
		return false
	}

	run(ctx, srv, msg, args)
	return true
}

func (h *Handler) reply(ctx context.Context, msg *platform.Message, text string) {
	if err := h.client.SendMessage(ctx, msg.ChannelID, text); err != nil {
		log.Warn().Err(err).Str("channel", msg.ChannelID).Msg("commands: failed to send reply")
	}
}

// add puts every mentioned user on the blacklist, bans them locally, and
// propagates. Targets holding moderation rights on this server are skipped.
func (h *Handler) add(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityBanMembers) {
		return
	}

	targets := mentionedIDs(args)
	if len(targets) == 0 {
		return
	}
	reason := stripMentions(args)

	for _, targetID := range targets {
		if member, err := h.client.FetchMember(ctx, srv.ID, targetID); err == nil {
			if srv.HasCapability(member, registry.CapabilityManageMessages) {
				continue
			}
		}

		existing, err := h.store.IsBlocked(ctx, targetID)
		if err != nil {
			log.Error().Err(err).Str("user", targetID).Msg("commands: blacklist lookup failed")
			h.reply(ctx, msg, fmt.Sprintf("Storage error while checking %s.", platform.Mention(targetID)))
			continue
		}

		entry := blacklist.Entry{
			UserID:      targetID,
			ServerID:    srv.ID,
			ModeratorID: msg.Author.User.ID,
			CreatedAt:   time.Now(),
			Reason:      reason,
		}
		if err := h.store.Add(ctx, entry); err != nil {
			log.Error().Err(err).Str("user", targetID).Msg("commands: failed to store blacklist entry")
			h.reply(ctx, msg, fmt.Sprintf("Storage error while blacklisting %s.", platform.Mention(targetID)))
			continue
		}

		if err := h.client.Ban(ctx, srv.ID, targetID, reason, h.retentionDays); err != nil {
			h.notifier.ServiceLog(ctx, fmt.Sprintf(
				"Could not ban user %s on server %s: %v", platform.Mention(targetID), srv.ID, err))
		}

		if existing != nil {
			h.reply(ctx, msg, fmt.Sprintf("User %s is already blacklisted.", platform.Mention(targetID)))
		} else {
			text := fmt.Sprintf("Moderator %s blacklisted user %s.",
				platform.Mention(msg.Author.User.ID), platform.Mention(targetID))
			if reason != "" {
				text += "\nReason: " + reason
			}
			h.notifier.Announce(ctx, srv, text)
		}

		h.dispatcher.Propagate(ctx, targetID, propagate.ModeBan, reason, srv.ID)
	}
}

// remove lifts mentioned users off the blacklist and propagates the unban.
func (h *Handler) remove(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityBanMembers) {
		return
	}

	targets := mentionedIDs(args)
	for _, targetID := range targets {
		existing, err := h.store.IsBlocked(ctx, targetID)
		if err != nil {
			log.Error().Err(err).Str("user", targetID).Msg("commands: blacklist lookup failed")
			continue
		}
		if existing == nil {
			h.reply(ctx, msg, fmt.Sprintf("User %s is not blacklisted.", platform.Mention(targetID)))
			continue
		}

		if err := h.store.Remove(ctx, targetID); err != nil {
			log.Error().Err(err).Str("user", targetID).Msg("commands: failed to remove blacklist entry")
			h.reply(ctx, msg, fmt.Sprintf("Storage error while removing %s.", platform.Mention(targetID)))
			continue
		}

		if err := h.client.Unban(ctx, srv.ID, targetID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			h.notifier.ServiceLog(ctx, fmt.Sprintf(
				"Could not unban user %s on server %s: %v", platform.Mention(targetID), srv.ID, err))
		}

		h.notifier.Announce(ctx, srv, fmt.Sprintf("Moderator %s removed user %s from the blacklist.",
			platform.Mention(msg.Author.User.ID), platform.Mention(targetID)))

		h.dispatcher.Propagate(ctx, targetID, propagate.ModeUnban, "", srv.ID)
	}
}

// info reports a user's blacklist status.
func (h *Handler) info(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageMessages) {
		return
	}

	for _, targetID := range mentionedIDs(args) {
		entry, err := h.store.IsBlocked(ctx, targetID)
		if err != nil {
			h.reply(ctx, msg, fmt.Sprintf("Storage error while checking %s.", platform.Mention(targetID)))
			continue
		}
		if entry == nil {
			h.reply(ctx, msg, fmt.Sprintf("User %s is not blacklisted.", platform.Mention(targetID)))
			continue
		}
		text := fmt.Sprintf("User %s is blacklisted.\nAdded: %s\nOrigin server: %s",
			platform.Mention(targetID), entry.CreatedAt.UTC().Format("2006-01-02 15:04")+" UTC", entry.ServerID)
		if entry.Reason != "" {
			text += "\nReason: " + entry.Reason
		}
		h.reply(ctx, msg, text)
	}
}

// stats reports blacklist size and connected server count.
func (h *Handler) stats(ctx context.Context, srv *registry.Server, msg *platform.Message, _ string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageMessages) {
		return
	}

	count, err := h.store.Count(ctx)
	if err != nil {
		h.reply(ctx, msg, "Storage error while counting blacklist entries.")
		return
	}
	h.reply(ctx, msg, fmt.Sprintf("**Stats**\nBlacklisted users: %d\nConnected servers: %d",
		count, h.registry.Count()))
}

// cleanup bulk-deletes recent messages on the channel, capped at 100.
func (h *Handler) cleanup(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageMessages) {
		return
	}

	count, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || count <= 0 {
		return
	}
	if count > 100 {
		count = 100
	}
	if err := h.client.BulkDeleteMessages(ctx, msg.ChannelID, count); err != nil {
		log.Warn().Err(err).Str("channel", msg.ChannelID).Msg("commands: bulk delete failed")
	}
}

// trust toggles the trusted flag for this server and persists it.
func (h *Handler) trust(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageServer) {
		return
	}

	enabled, ok := parseToggle(args)
	if !ok {
		h.reply(ctx, msg, "Usage: trust on|off")
		return
	}
	if err := h.flagStore.SetTrusted(ctx, srv.ID, enabled); err != nil {
		log.Error().Err(err).Str("server", srv.ID).Msg("commands: failed to persist trusted flag")
		h.reply(ctx, msg, "Storage error while updating the trusted flag.")
		return
	}
	h.registry.SetFlags(srv.ID, func(f *registry.Flags) { f.Trusted = enabled })
	h.reply(ctx, msg, fmt.Sprintf("Trusted flag is now %s.", onOff(enabled)))
}

// strict toggles the strict flag for this server and persists it.
func (h *Handler) strict(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageServer) {
		return
	}

	enabled, ok := parseToggle(args)
	if !ok {
		h.reply(ctx, msg, "Usage: strict on|off")
		return
	}
	if err := h.flagStore.SetStrict(ctx, srv.ID, enabled); err != nil {
		log.Error().Err(err).Str("server", srv.ID).Msg("commands: failed to persist strict flag")
		h.reply(ctx, msg, "Storage error while updating the strict flag.")
		return
	}
	h.registry.SetFlags(srv.ID, func(f *registry.Flags) { f.Strict = enabled })
	h.reply(ctx, msg, fmt.Sprintf("Strict mode is now %s.", onOff(enabled)))
}

// channel sets or clears this server's notification channel.
func (h *Handler) channel(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageServer) {
		return
	}

	var channelID string
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "set":
		channelID = msg.ChannelID
	case "clear":
		channelID = ""
	default:
		h.reply(ctx, msg, "Usage: channel set|clear")
		return
	}
	if err := h.flagStore.SetChannel(ctx, srv.ID, channelID); err != nil {
		log.Error().Err(err).Str("server", srv.ID).Msg("commands: failed to persist notification channel")
		h.reply(ctx, msg, "Storage error while updating the notification channel.")
		return
	}
	h.registry.SetFlags(srv.ID, func(f *registry.Flags) { f.NotifyChannelID = channelID })
	if channelID == "" {
		h.reply(ctx, msg, "Notification channel cleared.")
	} else {
		h.reply(ctx, msg, "Notifications will be posted to this channel.")
	}
}

// newsCmd manages news subscriptions and publishes broadcasts.
func (h *Handler) newsCmd(ctx context.Context, srv *registry.Server, msg *platform.Message, args string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageWebhooks) {
		return
	}

	sub, rest := args, ""
	if i := strings.IndexByte(args, ' '); i > 0 {
		sub, rest = args[:i], strings.TrimSpace(args[i+1:])
	}

	switch strings.ToLower(sub) {
	case "subscribe":
		if rest == "" {
			h.reply(ctx, msg, "Usage: news subscribe <tag>")
			return
		}
		if err := h.news.Subscribe(ctx, rest, msg.ChannelID); err != nil {
			log.Warn().Err(err).Str("tag", rest).Msg("commands: news subscribe failed")
			h.reply(ctx, msg, "Could not subscribe this channel.")
			return
		}
		h.reply(ctx, msg, fmt.Sprintf("Subscribed to news tag %q.", rest))
	case "unsubscribe":
		if rest == "" {
			h.reply(ctx, msg, "Usage: news unsubscribe <tag>")
			return
		}
		if err := h.news.Unsubscribe(ctx, rest, msg.ChannelID); err != nil {
			log.Warn().Err(err).Str("tag", rest).Msg("commands: news unsubscribe failed")
			h.reply(ctx, msg, "Could not unsubscribe this channel.")
			return
		}
		h.reply(ctx, msg, fmt.Sprintf("Unsubscribed from news tag %q.", rest))
	case "publish":
		tag, content := rest, ""
		if i := strings.IndexByte(rest, ' '); i > 0 {
			tag, content = rest[:i], strings.TrimSpace(rest[i+1:])
		}
		if tag == "" || content == "" {
			h.reply(ctx, msg, "Usage: news publish <tag> <text>")
			return
		}
		n, err := h.news.Publish(ctx, tag, content)
		if err != nil {
			h.reply(ctx, msg, "Could not publish the broadcast.")
			return
		}
		h.reply(ctx, msg, fmt.Sprintf("Broadcast sent to %d channel(s).", n))
	default:
		h.reply(ctx, msg, "Usage: news subscribe|unsubscribe|publish ...")
	}
}

func (h *Handler) help(ctx context.Context, srv *registry.Server, msg *platform.Message, _ string) {
	if !srv.HasCapability(&msg.Author, registry.CapabilityManageMessages) {
		return
	}
	h.reply(ctx, msg, helpText(h.prefix))
}

func helpText(prefix string) string {
	return "**Commands** (prefix: " + prefix + ")\n" +
		"add <@user> [reason] - blacklist the mentioned users\n" +
		"remove <@user> - remove the mentioned users from the blacklist\n" +
		"info <@user> - blacklist status of a user\n" +
		"stats - blacklist and server statistics\n" +
		"cleanup <count> - delete up to 100 recent messages\n" +
		"trust on|off - exempt this server's invites from spam scoring\n" +
		"strict on|off - punish first invite offenses immediately\n" +
		"channel set|clear - configure the notification channel\n" +
		"news subscribe|unsubscribe|publish - manage news broadcasts\n" +
		"help - this message"
}

func parseToggle(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes":
		return true, true
	case "off", "false", "no":
		return false, true
	default:
		return false, false
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

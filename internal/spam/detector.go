// Package spam tracks invite-link spam. It keeps a per-user suspicion map:
// a first offense is warned, a repeat offense within the suspicion window is
// escalated to a permanent blacklist entry plus cross-server propagation.
package spam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"warden/internal/blacklist"
	"warden/internal/metrics"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/propagate"
	"warden/internal/registry"
	"warden/internal/tracing"

	"github.com/rs/zerolog/log"
)

// Config holds the detector's policy knobs.
type Config struct {
	// BanJoinPeriod is the minimum local membership age for residency.
	BanJoinPeriod time.Duration

	// SuspiciousTimeout is how long a timed suspicion record lives.
	SuspiciousTimeout time.Duration

	// PrimaryServerID additionally receives the ban on escalation.
	PrimaryServerID string

	// BotUserID identifies the bot's own messages, which are exempt.
	BotUserID string

	// RetentionDays is passed to ban calls.
	RetentionDays int
}

// record is one user's suspicion state. A non-nil timer means the timed
// resident-path record that expires on its own; a nil timer is the untimed
// non-resident marker that only resolution removes.
type record struct {
	timer *time.Timer
}

// Detector is the stateful invite-spam tracker. The suspects map is owned
// exclusively by this type.
type Detector struct {
	cfg        Config
	client     platform.Client
	registry   *registry.Registry
	flags      registry.FlagSource
	store      blacklist.Store
	notifier   *notify.Notifier
	dispatcher *propagate.Dispatcher

	mu       sync.Mutex
	suspects map[string]*record

	now func() time.Time
}

// New creates a spam detector.
func New(cfg Config, client platform.Client, reg *registry.Registry, flags registry.FlagSource,
	store blacklist.Store, notifier *notify.Notifier, dispatcher *propagate.Dispatcher) *Detector {
	return &Detector{
		cfg:        cfg,
		client:     client,
		registry:   reg,
		flags:      flags,
		store:      store,
		notifier:   notifier,
		dispatcher: dispatcher,
		suspects:   make(map[string]*record),
		now:        time.Now,
	}
}

// Count returns the number of users with an open suspicion record.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.suspects)
}

// Inspect runs the invite-spam state machine over one message. It returns
// true if the message was consumed by spam handling, in which case the
// caller must not run command dispatch on it.
func (d *Detector) Inspect(ctx context.Context, msg *platform.Message) bool {
	if d.exempt(msg) {
		return false
	}

	codes := ExtractInviteCodes(msg.Content)
	if len(codes) == 0 {
		return false
	}

	srv := d.registry.Get(msg.ServerID)
	if srv == nil {
		return false
	}

	if d.allWhitelisted(ctx, codes, msg.ServerID) {
		return false
	}

	ctx, span := tracing.SpamSpan(ctx, msg.ServerID, msg.Author.User.ID)
	defer span.End()

	resident := d.now().Sub(msg.Author.JoinedAt) >= d.cfg.BanJoinPeriod

	if resident {
		return d.handleResident(ctx, srv, msg)
	}
	return d.handleNonResident(ctx, srv, msg)
}

// exempt reports whether the author is outside spam scoring: the bot
// itself, the server owner, and anyone already holding a role.
func (d *Detector) exempt(msg *platform.Message) bool {
	author := &msg.Author
	if author.User.Bot || author.User.ID == d.cfg.BotUserID {
		return true
	}
	if srv := d.registry.Get(msg.ServerID); srv != nil && author.User.ID == srv.OwnerID {
		return true
	}
	return len(author.RoleIDs) > 0
}

// allWhitelisted resolves every referenced code and reports whether all of
// them point at the current server or a trusted one. An unresolved code
// fails the scan toward suspicion rather than silently approving.
func (d *Detector) allWhitelisted(ctx context.Context, codes []string, currentServerID string) bool {
	for _, code := range codes {
		invite, err := d.client.ResolveInvite(ctx, code)
		if err != nil {
			log.Debug().Err(err).Str("code", code).Msg("spam: invite did not resolve, treating as suspicious")
			return false
		}
		if invite.ServerID == currentServerID {
			continue
		}
		if !d.targetTrusted(ctx, invite.ServerID) {
			return false
		}
	}
	return true
}

// targetTrusted checks the trusted flag of an invite's target server. The
// live cache is consulted first; a disconnected server can still be trusted,
// so the persisted flags are the fallback.
func (d *Detector) targetTrusted(ctx context.Context, serverID string) bool {
	if srv := d.registry.Get(serverID); srv != nil {
		return srv.Trusted
	}
	flags, err := d.flags.ServerFlags(ctx, serverID)
	if err != nil {
		log.Warn().Err(err).Str("server", serverID).Msg("spam: failed to load flags for invite target")
		return false
	}
	return flags.Trusted
}

func (d *Detector) handleResident(ctx context.Context, srv *registry.Server, msg *platform.Message) bool {
	userID := msg.Author.User.ID
	mention := platform.Mention(userID)

	// The record check and the timer restart happen in one locked step,
	// before any outbound call. A concurrent message from the same user
	// must observe this offense, not the state from before it.
	prior := d.recordResidentOffense(userID)

	consumed := false
	if srv.Strict || prior {
		metrics.SpamOffensesTotal.WithLabelValues("resident_offense").Inc()
		d.deleteMessage(ctx, srv, msg)
		consumed = true

		d.notifier.Announce(ctx, srv, fmt.Sprintf(
			"User %s posted a foreign invite link on %s; message removed.", mention, srv.Name))
		d.notifier.Warn(ctx, userID, fmt.Sprintf(
			"Your message on %s was removed: posting invite links to other servers is not allowed.", srv.Name))
	} else {
		metrics.SpamOffensesTotal.WithLabelValues("resident_soft").Inc()
		d.notifier.ServiceLog(ctx, fmt.Sprintf(
			"User %s posted a foreign invite link on %s (first offense, resident).", mention, srv.Name))
	}

	return consumed
}

func (d *Detector) handleNonResident(ctx context.Context, srv *registry.Server, msg *platform.Message) bool {
	userID := msg.Author.User.ID
	mention := platform.Mention(userID)

	// Decide and transition atomically: on a first offense the untimed
	// marker is installed before the outbound calls below, so a concurrent
	// second message from the same user always reads as a repeat.
	escalate := d.recordNonResidentOffense(userID, srv.Strict)

	d.deleteMessage(ctx, srv, msg)

	if !escalate {
		// First offense from a new account: warn only. The marker has no
		// timer, so the next offense is always treated as a repeat.
		metrics.SpamOffensesTotal.WithLabelValues("nonresident_warned").Inc()
		d.notifier.Announce(ctx, srv, fmt.Sprintf(
			"New user %s posted a foreign invite link on %s; message removed, user warned.", mention, srv.Name))
		d.notifier.Warn(ctx, userID, fmt.Sprintf(
			"Your message on %s was removed. Posting invite links will get you banned everywhere.", srv.Name))
		return true
	}

	// Repeat offense (or strict server): escalate to the blacklist.
	metrics.SpamOffensesTotal.WithLabelValues("nonresident_escalated").Inc()

	entry := blacklist.Entry{
		UserID:      userID,
		ServerID:    srv.ID,
		ModeratorID: blacklist.AutoModerator,
		CreatedAt:   d.now(),
		Reason:      "Invite-link spam (automatic)",
	}
	if err := d.store.Add(ctx, entry); err != nil {
		// A blacklist write failure is a correctness hazard; abort the
		// escalation rather than banning on state that was never stored.
		log.Error().Err(err).Str("user", userID).Msg("spam: failed to store blacklist entry")
		d.notifier.ServiceLog(ctx, fmt.Sprintf(
			"Failed to blacklist user %s for invite spam: %v", mention, err))
		return true
	}

	if err := d.client.Ban(ctx, srv.ID, userID, entry.Reason, d.cfg.RetentionDays); err != nil {
		d.notifier.ServiceLog(ctx, fmt.Sprintf(
			"Could not ban user %s on server %s: %v", mention, srv.ID, err))
	}
	if d.cfg.PrimaryServerID != "" && d.cfg.PrimaryServerID != srv.ID {
		if err := d.client.Ban(ctx, d.cfg.PrimaryServerID, userID, entry.Reason, d.cfg.RetentionDays); err != nil {
			d.notifier.ServiceLog(ctx, fmt.Sprintf(
				"Could not ban user %s on primary server: %v", mention, err))
		}
	}

	d.clear(userID)
	d.notifier.Announce(ctx, srv, fmt.Sprintf(
		"User %s blacklisted for invite-link spam.", mention))

	d.dispatcher.Propagate(ctx, userID, propagate.ModeBan, entry.Reason, srv.ID)
	return true
}

// deleteMessage removes the offending message. Failure never aborts the
// handling branch; it only produces an extra notification.
func (d *Detector) deleteMessage(ctx context.Context, srv *registry.Server, msg *platform.Message) {
	if err := d.client.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		d.notifier.ServerChannel(ctx, srv, fmt.Sprintf(
			"Could not delete message %s from %s: %v", msg.ID, platform.Mention(msg.Author.User.ID), err))
		log.Warn().Err(err).Str("message", msg.ID).Msg("spam: failed to delete message")
	}
}

// recordResidentOffense reports whether the user had an open record and
// installs a fresh timed record under the same lock, replacing any prior
// record and cancelling its timer. Expiry removal is keyed to the record
// itself, so a stale timer can never clear a newer record.
func (d *Detector) recordResidentOffense(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, prior := d.suspects[userID]
	if prior && old.timer != nil {
		old.timer.Stop()
	}

	rec := &record{}
	rec.timer = time.AfterFunc(d.cfg.SuspiciousTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if cur, ok := d.suspects[userID]; ok && cur == rec {
			delete(d.suspects, userID)
		}
	})
	d.suspects[userID] = rec
	return prior
}

// recordNonResidentOffense reports whether the offense escalates. A first
// offense on a non-strict server installs the untimed marker under the same
// lock; the marker does not expire, only escalation or an explicit clear
// removes it.
func (d *Detector) recordNonResidentOffense(userID string, strict bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, prior := d.suspects[userID]; prior || strict {
		return true
	}
	d.suspects[userID] = &record{}
	return false
}

// clear removes a user's record and cancels its timer if present.
func (d *Detector) clear(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.suspects[userID]; ok {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		delete(d.suspects, userID)
	}
}

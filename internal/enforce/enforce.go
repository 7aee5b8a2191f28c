// Package enforce applies the platform-wide ban policy: every member join
// and every message is checked against the blacklist, and a listed user is
// banned locally with the stored reason.
package enforce

import (
	"context"
	"fmt"

	"warden/internal/blacklist"
	"warden/internal/metrics"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/registry"
	"warden/internal/tracing"

	"github.com/rs/zerolog/log"
)

// Outcome is the terminal state of an enforcement check.
type Outcome int

const (
	// Allowed means the user is not blacklisted; processing continues.
	Allowed Outcome = iota

	// Blocked means the user is blacklisted. Message processing stops even
	// if the platform-side ban could not be applied.
	Blocked
)

// Engine decides and applies blacklist enforcement.
type Engine struct {
	store         blacklist.Store
	client        platform.Client
	registry      *registry.Registry
	notifier      *notify.Notifier
	retentionDays int
}

// New creates an enforcement engine.
func New(store blacklist.Store, client platform.Client, reg *registry.Registry, notifier *notify.Notifier, retentionDays int) *Engine {
	return &Engine{
		store:         store,
		client:        client,
		registry:      reg,
		notifier:      notifier,
		retentionDays: retentionDays,
	}
}

// Check looks the acting user up in the blacklist and, if listed, attempts
// the local ban. A storage failure aborts the check with an error; the
// caller must stop processing the event without treating the user as clean.
func (e *Engine) Check(ctx context.Context, member *platform.Member) (Outcome, error) {
	entry, err := e.store.IsBlocked(ctx, member.User.ID)
	if err != nil {
		metrics.EnforcementsTotal.WithLabelValues("storage_error").Inc()
		return Allowed, fmt.Errorf("blacklist lookup failed: %w", err)
	}
	if entry == nil {
		return Allowed, nil
	}

	ctx, span := tracing.EnforceSpan(ctx, member.ServerID, member.User.ID)
	defer span.End()

	srv := e.registry.Get(member.ServerID)
	mention := platform.Mention(member.User.ID)

	banErr := e.client.Ban(ctx, member.ServerID, member.User.ID, entry.Reason, e.retentionDays)
	tracing.EndWithError(span, banErr)

	if banErr != nil {
		// No automatic retry; the entry stays authoritative and the next
		// join or message from this user retries the ban.
		metrics.EnforcementsTotal.WithLabelValues("ban_failed").Inc()
		log.Warn().Err(banErr).Str("server", member.ServerID).Str("user", member.User.ID).
			Msg("enforce: could not apply blacklist ban")
		e.notifier.Announce(ctx, srv, fmt.Sprintf(
			"Could not enforce blacklist ban for user %s on server %s: %v", mention, member.ServerID, banErr))
		return Blocked, nil
	}

	metrics.EnforcementsTotal.WithLabelValues("banned").Inc()
	text := fmt.Sprintf("User %s banned per blacklist.", mention)
	if entry.Reason != "" {
		text += "\nReason: " + entry.Reason
	}
	e.notifier.Announce(ctx, srv, text)

	return Blocked, nil
}

// Package notify delivers operator-facing notifications: the fixed service
// log channel and each server's optional configured notification channel.
// Delivery failures are logged, never propagated as fatal errors.
package notify

import (
	"context"

	"warden/internal/platform"
	"warden/internal/registry"

	"github.com/rs/zerolog/log"
)

// Notifier sends plain-text operator notifications.
type Notifier struct {
	client           platform.Client
	serviceChannelID string
}

// New creates a notifier. serviceChannelID may be empty, in which case
// service-log notifications only reach the structured log.
func New(client platform.Client, serviceChannelID string) *Notifier {
	return &Notifier{client: client, serviceChannelID: serviceChannelID}
}

// ServiceLog posts text to the operator service-log channel and mirrors it
// to the structured log.
func (n *Notifier) ServiceLog(ctx context.Context, text string) {
	log.Info().Str("channel", "service").Msg(text)
	if n.serviceChannelID == "" {
		return
	}
	if err := n.client.SendMessage(ctx, n.serviceChannelID, text); err != nil {
		log.Warn().Err(err).Str("channel", n.serviceChannelID).Msg("notify: service log delivery failed")
	}
}

// ServerChannel posts text to a server's configured notification channel.
// Servers without a configured channel are skipped silently.
func (n *Notifier) ServerChannel(ctx context.Context, srv *registry.Server, text string) {
	if srv == nil || srv.NotifyChannelID == "" {
		return
	}
	if err := n.client.SendMessage(ctx, srv.NotifyChannelID, text); err != nil {
		log.Warn().Err(err).
			Str("server", srv.ID).
			Str("channel", srv.NotifyChannelID).
			Msg("notify: server channel delivery failed")
	}
}

// Announce posts text to both the server's channel and the service log.
func (n *Notifier) Announce(ctx context.Context, srv *registry.Server, text string) {
	n.ServerChannel(ctx, srv, text)
	n.ServiceLog(ctx, text)
}

// Warn sends a direct message to a user. Users with closed DMs are common;
// failure is logged and swallowed.
func (n *Notifier) Warn(ctx context.Context, userID, text string) {
	if err := n.client.SendDirectMessage(ctx, userID, text); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("notify: direct message delivery failed")
	}
}

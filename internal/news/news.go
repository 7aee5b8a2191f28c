// Package news implements the tag-based news broadcast: channels subscribe
// to a tag via a per-channel webhook, and published items fan out to every
// subscribed channel.
package news

import (
	"context"
	"fmt"

	"warden/internal/platform"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Subscription ties a channel's webhook to a news tag.
type Subscription struct {
	Tag       string `json:"tag"`
	ChannelID string `json:"channel_id"`
	WebhookID string `json:"webhook_id"`
	Token     string `json:"token"`
}

// Store is the persistence interface for subscriptions.
type Store interface {
	PutSubscription(ctx context.Context, sub Subscription) error
	GetSubscription(ctx context.Context, tag, channelID string) (*Subscription, error)
	DeleteSubscription(ctx context.Context, tag, channelID string) error
	ListByTag(ctx context.Context, tag string) ([]Subscription, error)
}

// Service manages subscriptions and publishes broadcasts.
type Service struct {
	store  Store
	client platform.Client
}

// NewService creates a news service.
func NewService(store Store, client platform.Client) *Service {
	return &Service{store: store, client: client}
}

// Subscribe creates a webhook on the channel and persists the subscription.
// Subscribing an already-subscribed channel is a no-op.
func (s *Service) Subscribe(ctx context.Context, tag, channelID string) error {
	existing, err := s.store.GetSubscription(ctx, tag, channelID)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if existing != nil {
		return nil
	}

	hook, err := s.client.CreateWebhook(ctx, channelID, "warden-news-"+tag)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}

	sub := Subscription{
		Tag:       tag,
		ChannelID: channelID,
		WebhookID: hook.ID,
		Token:     hook.Token,
	}
	if err := s.store.PutSubscription(ctx, sub); err != nil {
		// Don't leave an orphaned webhook behind.
		if derr := s.client.DeleteWebhook(ctx, hook.ID); derr != nil {
			log.Warn().Err(derr).Str("webhook", hook.ID).Msg("news: failed to roll back webhook")
		}
		return fmt.Errorf("failed to persist subscription: %w", err)
	}

	log.Info().Str("tag", tag).Str("channel", channelID).Msg("news: channel subscribed")
	return nil
}

// Unsubscribe deletes the webhook and removes the subscription.
func (s *Service) Unsubscribe(ctx context.Context, tag, channelID string) error {
	sub, err := s.store.GetSubscription(ctx, tag, channelID)
	if err != nil {
		return fmt.Errorf("failed to look up subscription: %w", err)
	}
	if sub == nil {
		return nil
	}

	if err := s.client.DeleteWebhook(ctx, sub.WebhookID); err != nil {
		// The webhook may already be gone; the subscription still goes away.
		log.Warn().Err(err).Str("webhook", sub.WebhookID).Msg("news: failed to delete webhook")
	}

	if err := s.store.DeleteSubscription(ctx, tag, channelID); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}

	log.Info().Str("tag", tag).Str("channel", channelID).Msg("news: channel unsubscribed")
	return nil
}

// Publish fans content out to every channel subscribed to the tag. A failed
// delivery is logged and never blocks the other channels.
func (s *Service) Publish(ctx context.Context, tag, content string) (int, error) {
	subs, err := s.store.ListByTag(ctx, tag)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := s.client.ExecuteWebhook(ctx, sub.WebhookID, sub.Token, content); err != nil {
				log.Warn().Err(err).
					Str("tag", tag).
					Str("channel", sub.ChannelID).
					Msg("news: delivery failed")
			}
			return nil
		})
	}

	_ = g.Wait()
	return len(subs), nil
}

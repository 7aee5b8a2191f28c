package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"warden/internal/news"
)

// NewsStore persists news subscriptions in SQLite.
type NewsStore struct {
	db *sql.DB
}

var _ news.Store = (*NewsStore)(nil)

func (s *NewsStore) PutSubscription(ctx context.Context, sub news.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news_subscriptions (tag, channel_id, webhook_id, token)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tag, channel_id) DO UPDATE SET
			webhook_id = excluded.webhook_id,
			token      = excluded.token
	`, sub.Tag, sub.ChannelID, sub.WebhookID, sub.Token)
	if err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

func (s *NewsStore) GetSubscription(ctx context.Context, tag, channelID string) (*news.Subscription, error) {
	var sub news.Subscription
	err := s.db.QueryRowContext(ctx, `
		SELECT tag, channel_id, webhook_id, token
		FROM news_subscriptions WHERE tag = ? AND channel_id = ?
	`, tag, channelID).Scan(&sub.Tag, &sub.ChannelID, &sub.WebhookID, &sub.Token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

func (s *NewsStore) DeleteSubscription(ctx context.Context, tag, channelID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM news_subscriptions WHERE tag = ? AND channel_id = ?
	`, tag, channelID)
	return err
}

func (s *NewsStore) ListByTag(ctx context.Context, tag string) ([]news.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, channel_id, webhook_id, token
		FROM news_subscriptions WHERE tag = ? ORDER BY channel_id
	`, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []news.Subscription
	for rows.Next() {
		var sub news.Subscription
		if err := rows.Scan(&sub.Tag, &sub.ChannelID, &sub.WebhookID, &sub.Token); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

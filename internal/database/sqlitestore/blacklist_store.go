package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"warden/internal/blacklist"
)

// BlacklistStore implements blacklist.Store using SQLite.
type BlacklistStore struct {
	db *sql.DB
}

var _ blacklist.Store = (*BlacklistStore)(nil)

func (s *BlacklistStore) IsBlocked(ctx context.Context, userID string) (*blacklist.Entry, error) {
	var e blacklist.Entry
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, server_id, moderator_id, created_at, reason
		FROM blacklist WHERE user_id = ?
	`, userID).Scan(&e.UserID, &e.ServerID, &e.ModeratorID, &createdAtStr, &e.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	return &e, nil
}

// Add inserts an entry. An existing entry keeps its origin, moderator and
// timestamp; only the reason is replaced, and only by a non-empty one.
func (s *BlacklistStore) Add(ctx context.Context, entry blacklist.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blacklist (user_id, server_id, moderator_id, created_at, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reason = excluded.reason
		WHERE excluded.reason != ''
	`, entry.UserID, entry.ServerID, entry.ModeratorID,
		entry.CreatedAt.Format(time.RFC3339Nano), entry.Reason)
	if err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

func (s *BlacklistStore) Remove(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("blacklist remove: %w", err)
	}
	return nil
}

func (s *BlacklistStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blacklist`).Scan(&count)
	return count, err
}

func (s *BlacklistStore) List(ctx context.Context) ([]blacklist.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, server_id, moderator_id, created_at, reason
		FROM blacklist ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []blacklist.Entry
	for rows.Next() {
		var e blacklist.Entry
		var createdAtStr string
		if err := rows.Scan(&e.UserID, &e.ServerID, &e.ModeratorID, &createdAtStr, &e.Reason); err != nil {
			continue
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

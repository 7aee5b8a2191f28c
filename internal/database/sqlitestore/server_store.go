package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"warden/internal/commands"
	"warden/internal/registry"
)

// ServerStore persists per-server settings in SQLite.
type ServerStore struct {
	db *sql.DB
}

var (
	_ registry.FlagSource = (*ServerStore)(nil)
	_ commands.FlagStore  = (*ServerStore)(nil)
)

// ServerFlags loads the persisted flags for a server. Unknown servers get
// zero-value flags.
func (s *ServerStore) ServerFlags(ctx context.Context, serverID string) (registry.Flags, error) {
	var flags registry.Flags
	var trusted, strict int
	err := s.db.QueryRowContext(ctx, `
		SELECT channel, trusted, strict FROM servers WHERE server_id = ?
	`, serverID).Scan(&flags.NotifyChannelID, &trusted, &strict)
	if err == sql.ErrNoRows {
		return registry.Flags{}, nil
	}
	if err != nil {
		return registry.Flags{}, fmt.Errorf("server flags: %w", err)
	}
	flags.Trusted = trusted == 1
	flags.Strict = strict == 1
	return flags, nil
}

func (s *ServerStore) SetTrusted(ctx context.Context, serverID string, trusted bool) error {
	return s.upsert(ctx, serverID, `trusted`, boolInt(trusted))
}

func (s *ServerStore) SetStrict(ctx context.Context, serverID string, strict bool) error {
	return s.upsert(ctx, serverID, `strict`, boolInt(strict))
}

func (s *ServerStore) SetChannel(ctx context.Context, serverID, channelID string) error {
	return s.upsert(ctx, serverID, `channel`, channelID)
}

// upsert writes one column for a server, creating the row if needed, then
// prunes rows that hold only default values.
func (s *ServerStore) upsert(ctx context.Context, serverID, column string, value any) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO servers (server_id, %[1]s) VALUES (?, ?)
		ON CONFLICT(server_id) DO UPDATE SET %[1]s = excluded.%[1]s
	`, column), serverID, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM servers WHERE server_id = ? AND channel = '' AND trusted = 0 AND strict = 0
	`, serverID)
	if err != nil {
		return fmt.Errorf("prune server row: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

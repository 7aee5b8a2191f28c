// Package sqlitestore provides SQLite-backed store implementations, an
// alternative to the default bolt backend for deployments that want to
// inspect moderation state with plain SQL tooling.
package sqlitestore

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS blacklist (
	user_id      TEXT PRIMARY KEY,
	server_id    TEXT NOT NULL,
	moderator_id TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS servers (
	server_id TEXT PRIMARY KEY,
	channel   TEXT NOT NULL DEFAULT '',
	trusted   INTEGER NOT NULL DEFAULT 0,
	strict    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS news_subscriptions (
	tag        TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	webhook_id TEXT NOT NULL,
	token      TEXT NOT NULL,
	PRIMARY KEY (tag, channel_id)
);
`

// Store wraps the SQLite database and hands out typed store views.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema. The connection is instrumented for tracing.
func Open(path string) (*Store, error) {
	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// BlacklistStore returns the blacklist view.
func (s *Store) BlacklistStore() *BlacklistStore {
	return &BlacklistStore{db: s.db}
}

// ServerStore returns the per-server flags view.
func (s *Store) ServerStore() *ServerStore {
	return &ServerStore{db: s.db}
}

// NewsStore returns the news subscription view.
func (s *Store) NewsStore() *NewsStore {
	return &NewsStore{db: s.db}
}

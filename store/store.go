// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package store provides the broker's message persistence: accepted
// chat broadcasts, stored-message deletion, and the sender block list,
// all backed by SQLite through lib/sqlitepool.
//
// Persist is idempotent on the client-generated message ID, so a
// retried broadcast (the sender never saw its ack) does not duplicate
// history.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/parlorchat/parlor/lib/sqlitepool"
	"github.com/parlorchat/parlor/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id         TEXT PRIMARY KEY,
    room       TEXT NOT NULL,
    timestamp  INTEGER NOT NULL,
    sender     TEXT NOT NULL,
    public_key TEXT NOT NULL,
    content    TEXT NOT NULL,
    signature  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_room_timestamp ON messages (room, timestamp);

CREATE TABLE IF NOT EXISTS blocked_users (
    public_key TEXT PRIMARY KEY
);
`

// Store persists chat messages and the block list. Safe for
// concurrent use; each operation borrows its own pooled connection.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Config holds the parameters for opening a message store.
type Config struct {
	// Path is the SQLite database path. ":memory:" (with PoolSize 1)
	// works for tests.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Open creates the message store, creating the schema on first use.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("message store: Logger is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("message store: %w", err)
	}

	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Persist stores an accepted chat broadcast. Idempotent: re-persisting
// a message ID already present is a no-op, matching the ID's role as
// the protocol's deduplication key.
func (s *Store) Persist(ctx context.Context, room string, msg wire.ChatMessage) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("message store: persist: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO messages (id, room, timestamp, sender, public_key, content, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				msg.ID, room, msg.Timestamp, msg.Sender, msg.PublicKey, msg.Content, msg.Signature,
			},
		})
	if err != nil {
		return fmt.Errorf("message store: inserting message %s: %w", msg.ID, err)
	}
	return nil
}

// Messages returns up to limit stored messages for a room, oldest
// first. Used by the history surface when a client rejoins.
func (s *Store) Messages(ctx context.Context, room string, limit int) ([]wire.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("message store: query: %w", err)
	}
	defer s.pool.Put(conn)

	var messages []wire.ChatMessage
	err = sqlitex.Execute(conn,
		`SELECT id, timestamp, sender, public_key, content, signature
		 FROM messages WHERE room = ? ORDER BY timestamp ASC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{room, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				messages = append(messages, wire.ChatMessage{
					ID:        stmt.ColumnText(0),
					Timestamp: stmt.ColumnInt64(1),
					Sender:    stmt.ColumnText(2),
					PublicKey: stmt.ColumnText(3),
					Content:   stmt.ColumnText(4),
					Signature: stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("message store: querying room %s: %w", room, err)
	}
	return messages, nil
}

// DeleteMessage removes a stored message, but only when publicKey
// matches the stored author — a participant can retract their own
// messages and nobody else's. Deleting an unknown ID is not an error:
// the broadcast may have predated persistence or been relayed without
// it.
func (s *Store) DeleteMessage(ctx context.Context, room, messageID, publicKey string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("message store: delete: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM messages WHERE room = ? AND id = ? AND public_key = ?`,
		&sqlitex.ExecOptions{Args: []any{room, messageID, publicKey}})
	if err != nil {
		return fmt.Errorf("message store: deleting message %s: %w", messageID, err)
	}
	return nil
}

// IsBlocked reports whether a sender public key is on the block list.
func (s *Store) IsBlocked(ctx context.Context, publicKey string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("message store: block check: %w", err)
	}
	defer s.pool.Put(conn)

	blocked := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM blocked_users WHERE public_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{publicKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blocked = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("message store: checking block list for %s: %w", publicKey, err)
	}
	return blocked, nil
}

// Block adds a public key to the block list. Idempotent.
func (s *Store) Block(ctx context.Context, publicKey string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("message store: block: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO blocked_users (public_key) VALUES (?)`,
		&sqlitex.ExecOptions{Args: []any{publicKey}})
	if err != nil {
		return fmt.Errorf("message store: blocking %s: %w", publicKey, err)
	}
	return nil
}

// Unblock removes a public key from the block list. Idempotent.
func (s *Store) Unblock(ctx context.Context, publicKey string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("message store: unblock: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM blocked_users WHERE public_key = ?`,
		&sqlitex.ExecOptions{Args: []any{publicKey}})
	if err != nil {
		return fmt.Errorf("message store: unblocking %s: %w", publicKey, err)
	}
	return nil
}

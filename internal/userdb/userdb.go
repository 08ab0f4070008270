// Package userdb persists Users and their configured IRC servers (spec §3
// User/UserServerInfo, §6 User.db schema). This is the domain addition
// SPEC_FULL.md adds to give auth/orchestrator a concrete backing store.
package userdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ServerInfo mirrors spec §3 UserServerInfo.
type ServerInfo struct {
	Name     string
	Host     string
	Port     int
	Encoding string
	Nicks    []string
	SSL      bool
	Channels []string
}

const schema = `
CREATE TABLE IF NOT EXISTS User (
  userId TEXT PRIMARY KEY,
  passwordHash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS UserServer (
  userIdx TEXT NOT NULL,
  serverName TEXT NOT NULL,
  host TEXT NOT NULL,
  port INTEGER NOT NULL,
  encoding TEXT NOT NULL DEFAULT 'utf-8',
  ssl INTEGER NOT NULL DEFAULT 0,
  nicknames TEXT NOT NULL DEFAULT '',
  channels TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (userIdx, serverName)
);
`

// DB wraps User.db: user accounts and their configured IRC servers.
type DB struct {
	db *sql.DB
}

// Open opens (creating if absent) the User.db SQLite file.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("userdb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("userdb: migrate schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error { return d.db.Close() }

// ListUsers returns every registered user id, for connecting their IRC
// servers at startup (SPEC_FULL.md §9 init order "DBs → Users → Reactor
// → Servers").
func (d *DB) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT userId FROM User`)
	if err != nil {
		return nil, fmt.Errorf("userdb: list users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("userdb: scan user row: %w", err)
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

// PasswordHash implements auth.PasswordLookup.
func (d *DB) PasswordHash(ctx context.Context, userID string) (string, bool, error) {
	var hash string
	err := d.db.QueryRowContext(ctx, `SELECT passwordHash FROM User WHERE userId = ?`, userID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("userdb: lookup password hash: %w", err)
	}
	return hash, true, nil
}

// PutUser inserts or replaces a user's stored password hash.
func (d *DB) PutUser(ctx context.Context, userID, passwordHash string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO User (userId, passwordHash) VALUES (?, ?)
		 ON CONFLICT(userId) DO UPDATE SET passwordHash = excluded.passwordHash`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("userdb: put user: %w", err)
	}
	return nil
}

// Servers returns every server configured for userID.
func (d *DB) Servers(ctx context.Context, userID string) ([]ServerInfo, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT serverName, host, port, encoding, ssl, nicknames, channels
		 FROM UserServer WHERE userIdx = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("userdb: list servers: %w", err)
	}
	defer rows.Close()

	var out []ServerInfo
	for rows.Next() {
		var s ServerInfo
		var ssl int
		var nicks, channels string
		if err := rows.Scan(&s.Name, &s.Host, &s.Port, &s.Encoding, &ssl, &nicks, &channels); err != nil {
			return nil, fmt.Errorf("userdb: scan server row: %w", err)
		}
		s.SSL = ssl != 0
		s.Nicks = splitCSV(nicks)
		s.Channels = splitCSV(channels)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PutServer inserts or replaces one of a user's configured servers.
func (d *DB) PutServer(ctx context.Context, userID string, s ServerInfo) error {
	sslInt := 0
	if s.SSL {
		sslInt = 1
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO UserServer (userIdx, serverName, host, port, encoding, ssl, nicknames, channels)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(userIdx, serverName) DO UPDATE SET
		   host = excluded.host, port = excluded.port, encoding = excluded.encoding,
		   ssl = excluded.ssl, nicknames = excluded.nicknames, channels = excluded.channels`,
		userID, s.Name, s.Host, s.Port, s.Encoding, sslInt, joinCSV(s.Nicks), joinCSV(s.Channels),
	)
	if err != nil {
		return fmt.Errorf("userdb: put server: %w", err)
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinCSV(parts []string) string {
	return strings.Join(parts, ",")
}

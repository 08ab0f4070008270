// Package archive is the SQLite-backed log store (spec §4.6, §6 C9):
// inserts and range/last-N fetches against the Log table, keyed by
// (userId, serverName, channel).
package archive

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// LogType mirrors spec §3 LogLine.logType (0..6).
type LogType int

const (
	LogJoin LogType = iota
	LogPart
	LogMode
	LogTopic
	LogNotice
	LogPrivmsg
	LogServerMsg
)

// LogLine is one archived entry (spec §3).
type LogLine struct {
	Idx       int64
	UserID    string
	Server    string
	Channel   string
	Time      int64 // unix epoch seconds
	Nickname  string
	Type      LogType
	Message   string
}

const schema = `
CREATE TABLE IF NOT EXISTS Log (
  idx INTEGER PRIMARY KEY AUTOINCREMENT,
  userId TEXT NOT NULL,
  serverName TEXT NOT NULL,
  channel TEXT NOT NULL,
  logTime INTEGER NOT NULL,
  nickname TEXT,
  logType INTEGER NOT NULL,
  message TEXT
);
CREATE INDEX IF NOT EXISTS LogIndex ON Log (userId, serverName, channel, logTime DESC);
`

// Store wraps a single *sql.DB handle; SQLite access serializes at this
// boundary (spec §5 "Archive DB access serializes at the store boundary").
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures the
// Log table/index exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	// The pure-Go sqlite driver serializes writers internally; one
	// connection avoids SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Insert appends one log line; idx is assigned by SQLite autoincrement.
func (s *Store) Insert(ctx context.Context, line LogLine) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO Log (userId, serverName, channel, logTime, nickname, logType, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		line.UserID, line.Server, line.Channel, line.Time, line.Nickname, int(line.Type), line.Message,
	)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// Range fetches entries for (userId, server, channel) with logTime in
// [begin, end), ordered idx ASC (spec §6).
func (s *Store) Range(ctx context.Context, userID, server, channel string, begin, end int64) ([]LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, userId, serverName, channel, logTime, nickname, logType, message
		 FROM Log
		 WHERE userId = ? AND serverName = ? AND channel = ? AND logTime >= ? AND logTime < ?
		 ORDER BY idx ASC`,
		userID, server, channel, begin, end,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: range query: %w", err)
	}
	defer rows.Close()
	return scanLines(rows)
}

// LastN fetches the last n entries before end (inclusive of end if
// includeEnd), ordered idx DESC then reversed into chronological order
// before returning (spec §6).
func (s *Store) LastN(ctx context.Context, userID, server, channel string, end int64, includeEnd bool, n int) ([]LogLine, error) {
	cmp := "<"
	if includeEnd {
		cmp = "<="
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT idx, userId, serverName, channel, logTime, nickname, logType, message
		 FROM Log
		 WHERE userId = ? AND serverName = ? AND channel = ? AND logTime %s ?
		 ORDER BY idx DESC LIMIT ?`, cmp),
		userID, server, channel, end, n,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: last-n query: %w", err)
	}
	defer rows.Close()

	lines, err := scanLines(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

func scanLines(rows *sql.Rows) ([]LogLine, error) {
	var out []LogLine
	for rows.Next() {
		var l LogLine
		var nickname, message sql.NullString
		var logType int
		if err := rows.Scan(&l.Idx, &l.UserID, &l.Server, &l.Channel, &l.Time, &nickname, &logType, &message); err != nil {
			return nil, fmt.Errorf("archive: scan row: %w", err)
		}
		l.Nickname = nickname.String
		l.Message = message.String
		l.Type = LogType(logType)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

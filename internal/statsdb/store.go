// Package statsdb gives the stats endpoint durable operation counters
// that survive a remount: database/sql over modernc.org/sqlite, WAL
// journal mode, and a single connection to sidestep SQLite's
// writer-locking.
package statsdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS op_counter (
	op    TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
);
`

// Store persists operation counters to a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the counters database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statsdb: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("statsdb: schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add increments op's persisted counter by delta.
func (s *Store) Add(ctx context.Context, op string, delta uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO op_counter (op, count) VALUES (?, ?)
		ON CONFLICT(op) DO UPDATE SET count = count + excluded.count
	`, op, delta)
	return err
}

// Snapshot returns every persisted counter.
func (s *Store) Snapshot(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT op, count FROM op_counter ORDER BY op`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var op string
		var count uint64
		if err := rows.Scan(&op, &count); err != nil {
			return nil, err
		}
		out[op] = count
	}
	return out, rows.Err()
}

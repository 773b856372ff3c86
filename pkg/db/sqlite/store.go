// Package sqlite is the embedded db.Store used for local development, the
// operator CLI and tests. Timestamps are stored as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	logger *zap.Logger
	db     *sql.DB
}

var _ db.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, logger *zap.Logger, path string) (*Store, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; also keeps a :memory: database on a single connection
	conn.SetMaxOpenConns(1)

	s := &Store{logger: logger, db: conn}
	if err := s.initialize(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("SQLite store ready", zap.String("path", path))
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS voters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER UNIQUE REFERENCES accounts(id) ON DELETE SET NULL,
		control_number TEXT NOT NULL UNIQUE,
		is_eligible INTEGER NOT NULL DEFAULT 1,
		ledger_address TEXT NOT NULL DEFAULT '',
		has_voted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS elections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		CHECK (start_time <= end_time)
	)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		list_name TEXT NOT NULL DEFAULT '',
		image_ref TEXT NOT NULL DEFAULT '',
		manifesto TEXT NOT NULL DEFAULT '',
		election_id INTEGER REFERENCES elections(id) ON DELETE CASCADE,
		raw_vote_counter INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS candidate_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id INTEGER NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		voter_id INTEGER NOT NULL REFERENCES voters(id) ON DELETE CASCADE,
		candidate_id INTEGER REFERENCES candidates(id) ON DELETE SET NULL,
		election_id INTEGER NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		ledger_txid TEXT NOT NULL DEFAULT '',
		valid INTEGER NOT NULL DEFAULT 0,
		UNIQUE (voter_id, election_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ledger_txid TEXT NOT NULL UNIQUE,
		candidate_id INTEGER NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
		election_id INTEGER NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		recorded_at INTEGER NOT NULL,
		simulated INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_records_election ON ledger_records (election_id, candidate_id)`,
}

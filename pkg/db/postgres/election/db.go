package election

import (
	"context"
	"fmt"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/postgres"
	"github.com/cesa-network/cesavote/pkg/retry"
	"go.uber.org/zap"
)

// DB is the PostgreSQL implementation of db.Store.
type DB struct {
	postgres.Client
}

var _ db.Store = (*DB)(nil)

// New connects and makes sure the schema exists.
func New(ctx context.Context, logger *zap.Logger, dbURL string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("component", poolConfig.Component),
	), dbURL, poolConfig, retry.DefaultConfig())
	if err != nil {
		return nil, err
	}

	store := &DB{Client: client}
	if err := store.InitializeDB(ctx); err != nil {
		store.Pool.Close()
		return nil, err
	}
	return store, nil
}

// InitializeDB creates the tables when missing.
func (d *DB) InitializeDB(ctx context.Context) error {
	for i, stmt := range schema {
		if err := d.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	d.Logger.Info("Election schema ready")
	return nil
}

func (d *DB) Ping(ctx context.Context) error { return d.Pool.Ping(ctx) }

func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS voters (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT UNIQUE REFERENCES accounts(id) ON DELETE SET NULL,
		control_number TEXT NOT NULL UNIQUE,
		is_eligible BOOLEAN NOT NULL DEFAULT TRUE,
		ledger_address TEXT NOT NULL DEFAULT '',
		has_voted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS elections (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		CHECK (start_time <= end_time)
	)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		list_name TEXT NOT NULL DEFAULT '',
		image_ref TEXT NOT NULL DEFAULT '',
		manifesto TEXT NOT NULL DEFAULT '',
		election_id BIGINT REFERENCES elections(id) ON DELETE CASCADE,
		raw_vote_counter BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS candidate_members (
		id BIGSERIAL PRIMARY KEY,
		candidate_id BIGINT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id BIGSERIAL PRIMARY KEY,
		voter_id BIGINT NOT NULL REFERENCES voters(id) ON DELETE CASCADE,
		candidate_id BIGINT REFERENCES candidates(id) ON DELETE SET NULL,
		election_id BIGINT NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ledger_txid TEXT NOT NULL DEFAULT '',
		valid BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (voter_id, election_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_votes_pending ON votes (created_at) WHERE NOT valid`,
	`CREATE TABLE IF NOT EXISTS ledger_records (
		id BIGSERIAL PRIMARY KEY,
		ledger_txid TEXT NOT NULL UNIQUE,
		candidate_id BIGINT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
		election_id BIGINT NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		simulated BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_records_election ON ledger_records (election_id, candidate_id)`,
}

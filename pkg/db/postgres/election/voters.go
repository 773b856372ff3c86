package election

import (
	"context"
	"fmt"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/cesa-network/cesavote/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
)

func (d *DB) CreateAccount(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := d.GetExecutor(ctx).QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert account %s: %w", username, err)
	}
	return id, nil
}

func (d *DB) AccountByUsername(ctx context.Context, username string) (*vote.Account, error) {
	return d.account(ctx, `username = $1`, username)
}

func (d *DB) AccountByID(ctx context.Context, id int64) (*vote.Account, error) {
	return d.account(ctx, `id = $1`, id)
}

func (d *DB) account(ctx context.Context, where string, arg any) (*vote.Account, error) {
	var a vote.Account
	err := d.GetExecutor(ctx).QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE `+where, arg).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if postgres.IsNoRows(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %v: %w", arg, err)
	}
	return &a, nil
}

func (d *DB) CreateVoter(ctx context.Context, v *vote.Voter) (int64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	err := d.GetExecutor(ctx).QueryRow(ctx, `
		INSERT INTO voters (account_id, control_number, is_eligible, ledger_address, has_voted)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		v.AccountID, v.ControlNumber, v.IsEligible, v.LedgerAddress, v.HasVoted).Scan(&v.ID)
	if err != nil {
		return 0, fmt.Errorf("insert voter %s: %w", v.ControlNumber, err)
	}
	return v.ID, nil
}

const voterColumns = `id, account_id, control_number, is_eligible, ledger_address, has_voted`

func scanVoter(row pgx.Row) (*vote.Voter, error) {
	var v vote.Voter
	if err := row.Scan(&v.ID, &v.AccountID, &v.ControlNumber, &v.IsEligible, &v.LedgerAddress, &v.HasVoted); err != nil {
		if postgres.IsNoRows(err) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (d *DB) VoterByID(ctx context.Context, id int64) (*vote.Voter, error) {
	return scanVoter(d.GetExecutor(ctx).QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE id = $1`, id))
}

func (d *DB) VoterByAccount(ctx context.Context, accountID int64) (*vote.Voter, error) {
	return scanVoter(d.GetExecutor(ctx).QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE account_id = $1`, accountID))
}

func (d *DB) VoterByControlNumber(ctx context.Context, controlNumber string) (*vote.Voter, error) {
	return scanVoter(d.GetExecutor(ctx).QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE control_number = $1`, controlNumber))
}

func (d *DB) CountEligibleVoters(ctx context.Context) (int64, error) {
	var n int64
	err := d.GetExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM voters WHERE is_eligible`).Scan(&n)
	return n, err
}

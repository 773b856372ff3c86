package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
)

func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, millis(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert account %s: %w", username, err)
	}
	return res.LastInsertId()
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (*vote.Account, error) {
	return s.account(ctx, `username = ?`, username)
}

func (s *Store) AccountByID(ctx context.Context, id int64) (*vote.Account, error) {
	return s.account(ctx, `id = ?`, id)
}

func (s *Store) account(ctx context.Context, where string, arg any) (*vote.Account, error) {
	var a vote.Account
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE `+where, arg).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %v: %w", arg, err)
	}
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

func (s *Store) CreateVoter(ctx context.Context, v *vote.Voter) (int64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO voters (account_id, control_number, is_eligible, ledger_address, has_voted)
		VALUES (?, ?, ?, ?, ?)`,
		nullInt(v.AccountID), v.ControlNumber, v.IsEligible, v.LedgerAddress, v.HasVoted)
	if err != nil {
		return 0, fmt.Errorf("insert voter %s: %w", v.ControlNumber, err)
	}
	v.ID, err = res.LastInsertId()
	return v.ID, err
}

const voterColumns = `id, account_id, control_number, is_eligible, ledger_address, has_voted`

func scanVoter(row *sql.Row) (*vote.Voter, error) {
	var v vote.Voter
	var account sql.NullInt64
	if err := row.Scan(&v.ID, &account, &v.ControlNumber, &v.IsEligible, &v.LedgerAddress, &v.HasVoted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	v.AccountID = ptrInt(account)
	return &v, nil
}

func (s *Store) VoterByID(ctx context.Context, id int64) (*vote.Voter, error) {
	return scanVoter(s.db.QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voters WHERE id = ?`, id))
}

func (s *Store) VoterByAccount(ctx context.Context, accountID int64) (*vote.Voter, error) {
	return scanVoter(s.db.QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voters WHERE account_id = ?`, accountID))
}

func (s *Store) VoterByControlNumber(ctx context.Context, controlNumber string) (*vote.Voter, error) {
	return scanVoter(s.db.QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voters WHERE control_number = ?`, controlNumber))
}

func (s *Store) CountEligibleVoters(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM voters WHERE is_eligible = 1`).Scan(&n)
	return n, err
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"go.uber.org/zap"
)

func (s *Store) HasVote(ctx context.Context, voterID, electionID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM votes WHERE voter_id = ? AND election_id = ?)`,
		voterID, electionID).Scan(&exists)
	return exists, err
}

func (s *Store) InsertVote(ctx context.Context, voterID, candidateID, electionID int64, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (voter_id, candidate_id, election_id, created_at, valid) VALUES (?, ?, ?, ?, 0)`,
		voterID, candidateID, electionID, millis(at))
	if isUniqueViolation(err) {
		return 0, db.ErrDuplicateVote
	}
	if err != nil {
		return 0, fmt.Errorf("insert vote: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) FinalizeVote(ctx context.Context, f vote.Finalization) (mirrorErr error, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Rollback failed", zap.Int64("vote_id", f.VoteID), zap.Error(rbErr))
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE votes SET candidate_id = NULL, valid = 1, ledger_txid = ?
		WHERE id = ? AND valid = 0`, f.TxID, f.VoteID)
	if err != nil {
		return nil, fmt.Errorf("finalize vote %d: %w", f.VoteID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, db.ErrNotPending
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE voters SET has_voted = 1 WHERE id = (SELECT voter_id FROM votes WHERE id = ?)`, f.VoteID); err != nil {
		return nil, fmt.Errorf("flag voter of vote %d: %w", f.VoteID, err)
	}

	if _, err = tx.ExecContext(ctx, `SAVEPOINT mirror`); err != nil {
		return nil, err
	}
	_, mirrorErr = tx.ExecContext(ctx, `
		INSERT INTO ledger_records (ledger_txid, candidate_id, election_id, recorded_at, simulated)
		VALUES (?, ?, ?, ?, ?)`,
		f.TxID, f.CandidateID, f.ElectionID, millis(f.RecordedAt), f.Simulated)
	if mirrorErr != nil {
		if _, err = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT mirror`); err != nil {
			return nil, err
		}
	}
	if _, err = tx.ExecContext(ctx, `RELEASE SAVEPOINT mirror`); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finalize: %w", err)
	}
	return mirrorErr, nil
}

func (s *Store) RecordSubmission(ctx context.Context, voteID int64, txid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE votes SET ledger_txid = ? WHERE id = ? AND valid = 0`, txid, voteID)
	return err
}

func (s *Store) PendingVotes(ctx context.Context, olderThan time.Time, limit int) ([]vote.PendingVote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, election_id, created_at, ledger_txid FROM votes
		WHERE valid = 0 AND candidate_id IS NOT NULL AND created_at <= ?
		ORDER BY created_at, id LIMIT ?`, millis(olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending votes: %w", err)
	}
	defer rows.Close()

	out := []vote.PendingVote{}
	for rows.Next() {
		var p vote.PendingVote
		var created int64
		if err := rows.Scan(&p.VoteID, &p.CandidateID, &p.ElectionID, &created, &p.LastTxID); err != nil {
			return nil, err
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountVotes(ctx context.Context, electionID *int64) (int64, error) {
	var n int64
	var err error
	if electionID == nil {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE election_id = ?`, *electionID).Scan(&n)
	}
	return n, err
}

func (s *Store) CountLedgerRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_records`).Scan(&n)
	return n, err
}

func (s *Store) MirrorCounts(ctx context.Context, electionID int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_id, COUNT(*) FROM ledger_records WHERE election_id = ? GROUP BY candidate_id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("mirror counts: %w", err)
	}
	defer rows.Close()

	out := map[int64]int64{}
	for rows.Next() {
		var cand, n int64
		if err := rows.Scan(&cand, &n); err != nil {
			return nil, err
		}
		out[cand] = n
	}
	return out, rows.Err()
}

func (s *Store) RecentLedgerRecords(ctx context.Context, limit int) ([]vote.LedgerRecordView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.ledger_txid, r.candidate_id, r.election_id, r.recorded_at, r.simulated, c.name, e.name
		FROM ledger_records r
		JOIN candidates c ON c.id = r.candidate_id
		JOIN elections e ON e.id = r.election_id
		ORDER BY r.recorded_at DESC, r.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent ledger records: %w", err)
	}
	defer rows.Close()

	out := []vote.LedgerRecordView{}
	for rows.Next() {
		var v vote.LedgerRecordView
		var recorded int64
		if err := rows.Scan(&v.ID, &v.TxID, &v.CandidateID, &v.ElectionID, &recorded, &v.Simulated,
			&v.CandidateName, &v.ElectionName); err != nil {
			return nil, err
		}
		v.RecordedAt = fromMillis(recorded)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) RefreshCandidateCounter(ctx context.Context, candidateID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates SET raw_vote_counter =
			(SELECT COUNT(*) FROM votes WHERE candidate_id = ? AND valid = 0) +
			(SELECT COUNT(*) FROM ledger_records WHERE candidate_id = ?)
		WHERE id = ?`, candidateID, candidateID, candidateID)
	if err != nil {
		return 0, fmt.Errorf("refresh counter of candidate %d: %w", candidateID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, db.ErrNotFound
	}
	var n int64
	err = s.db.QueryRowContext(ctx, `SELECT raw_vote_counter FROM candidates WHERE id = ?`, candidateID).Scan(&n)
	return n, err
}

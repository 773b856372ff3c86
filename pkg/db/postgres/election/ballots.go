package election

import (
	"context"
	"fmt"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/cesa-network/cesavote/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
)

func (d *DB) HasVote(ctx context.Context, voterID, electionID int64) (bool, error) {
	var exists bool
	err := d.GetExecutor(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM votes WHERE voter_id = $1 AND election_id = $2)`,
		voterID, electionID).Scan(&exists)
	return exists, err
}

func (d *DB) InsertVote(ctx context.Context, voterID, candidateID, electionID int64, at time.Time) (int64, error) {
	var id int64
	err := d.GetExecutor(ctx).QueryRow(ctx, `
		INSERT INTO votes (voter_id, candidate_id, election_id, created_at, valid)
		VALUES ($1, $2, $3, $4, FALSE) RETURNING id`,
		voterID, candidateID, electionID, at.UTC()).Scan(&id)
	if postgres.IsUniqueViolation(err) {
		return 0, db.ErrDuplicateVote
	}
	if err != nil {
		return 0, fmt.Errorf("insert vote: %w", err)
	}
	return id, nil
}

func (d *DB) FinalizeVote(ctx context.Context, f vote.Finalization) (mirrorErr error, err error) {
	err = d.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE votes SET candidate_id = NULL, valid = TRUE, ledger_txid = $2
			WHERE id = $1 AND NOT valid`, f.VoteID, f.TxID)
		if err != nil {
			return fmt.Errorf("finalize vote %d: %w", f.VoteID, err)
		}
		if tag.RowsAffected() == 0 {
			return db.ErrNotPending
		}
		if _, err := tx.Exec(ctx, `
			UPDATE voters SET has_voted = TRUE
			WHERE id = (SELECT voter_id FROM votes WHERE id = $1)`, f.VoteID); err != nil {
			return fmt.Errorf("flag voter of vote %d: %w", f.VoteID, err)
		}

		// nested Begin on a pgx.Tx is a savepoint
		mirrorErr = pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
			_, err := sp.Exec(ctx, `
				INSERT INTO ledger_records (ledger_txid, candidate_id, election_id, recorded_at, simulated)
				VALUES ($1, $2, $3, $4, $5)`,
				f.TxID, f.CandidateID, f.ElectionID, f.RecordedAt.UTC(), f.Simulated)
			return err
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mirrorErr, nil
}

func (d *DB) RecordSubmission(ctx context.Context, voteID int64, txid string) error {
	_, err := d.GetExecutor(ctx).Exec(ctx,
		`UPDATE votes SET ledger_txid = $2 WHERE id = $1 AND NOT valid`, voteID, txid)
	return err
}

func (d *DB) PendingVotes(ctx context.Context, olderThan time.Time, limit int) ([]vote.PendingVote, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT id, candidate_id, election_id, created_at, ledger_txid FROM votes
		WHERE NOT valid AND candidate_id IS NOT NULL AND created_at <= $1
		ORDER BY created_at, id LIMIT $2`, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending votes: %w", err)
	}
	defer rows.Close()

	out := []vote.PendingVote{}
	for rows.Next() {
		var p vote.PendingVote
		if err := rows.Scan(&p.VoteID, &p.CandidateID, &p.ElectionID, &p.CreatedAt, &p.LastTxID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) CountVotes(ctx context.Context, electionID *int64) (int64, error) {
	var n int64
	var err error
	if electionID == nil {
		err = d.GetExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM votes`).Scan(&n)
	} else {
		err = d.GetExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE election_id = $1`, *electionID).Scan(&n)
	}
	return n, err
}

func (d *DB) CountLedgerRecords(ctx context.Context) (int64, error) {
	var n int64
	err := d.GetExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ledger_records`).Scan(&n)
	return n, err
}

func (d *DB) MirrorCounts(ctx context.Context, electionID int64) (map[int64]int64, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT candidate_id, COUNT(*) FROM ledger_records
		WHERE election_id = $1 GROUP BY candidate_id`, electionID)
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

func (d *DB) RecentLedgerRecords(ctx context.Context, limit int) ([]vote.LedgerRecordView, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT r.id, r.ledger_txid, r.candidate_id, r.election_id, r.recorded_at, r.simulated,
		       c.name, e.name
		FROM ledger_records r
		JOIN candidates c ON c.id = r.candidate_id
		JOIN elections e ON e.id = r.election_id
		ORDER BY r.recorded_at DESC, r.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent ledger records: %w", err)
	}
	defer rows.Close()

	out := []vote.LedgerRecordView{}
	for rows.Next() {
		var v vote.LedgerRecordView
		if err := rows.Scan(&v.ID, &v.TxID, &v.CandidateID, &v.ElectionID, &v.RecordedAt, &v.Simulated,
			&v.CandidateName, &v.ElectionName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (d *DB) RefreshCandidateCounter(ctx context.Context, candidateID int64) (int64, error) {
	var n int64
	err := d.GetExecutor(ctx).QueryRow(ctx, `
		UPDATE candidates SET raw_vote_counter =
			(SELECT COUNT(*) FROM votes WHERE candidate_id = $1 AND NOT valid) +
			(SELECT COUNT(*) FROM ledger_records WHERE candidate_id = $1)
		WHERE id = $1
		RETURNING raw_vote_counter`, candidateID).Scan(&n)
	if postgres.IsNoRows(err) {
		return 0, db.ErrNotFound
	}
	return n, err
}

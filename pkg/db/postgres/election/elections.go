package election

import (
	"context"
	"fmt"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/cesa-network/cesavote/pkg/db/postgres"
)

func (d *DB) CreateElection(ctx context.Context, e *vote.Election) (int64, error) {
	err := d.GetExecutor(ctx).QueryRow(ctx, `
		INSERT INTO elections (name, start_time, end_time, created_by)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		e.Name, e.StartTime, e.EndTime, e.CreatedBy).Scan(&e.ID)
	if err != nil {
		return 0, fmt.Errorf("insert election %s: %w", e.Name, err)
	}
	return e.ID, nil
}

func (d *DB) GetElection(ctx context.Context, id int64) (*vote.Election, error) {
	var e vote.Election
	err := d.GetExecutor(ctx).QueryRow(ctx,
		`SELECT id, name, start_time, end_time, created_by FROM elections WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.StartTime, &e.EndTime, &e.CreatedBy)
	if postgres.IsNoRows(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get election %d: %w", id, err)
	}
	return &e, nil
}

func (d *DB) ListElections(ctx context.Context) ([]vote.Election, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx,
		`SELECT id, name, start_time, end_time, created_by FROM elections ORDER BY start_time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	defer rows.Close()

	out := []vote.Election{}
	for rows.Next() {
		var e vote.Election
		if err := rows.Scan(&e.ID, &e.Name, &e.StartTime, &e.EndTime, &e.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) CreateCandidate(ctx context.Context, c *vote.Candidate) (int64, error) {
	err := d.GetExecutor(ctx).QueryRow(ctx, `
		INSERT INTO candidates (name, list_name, image_ref, manifesto, election_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.Name, c.ListName, c.ImageRef, c.Manifesto, c.ElectionID).Scan(&c.ID)
	if err != nil {
		return 0, fmt.Errorf("insert candidate %s: %w", c.Name, err)
	}
	return c.ID, nil
}

func (d *DB) AddCandidateMember(ctx context.Context, m *vote.CandidateMember) (int64, error) {
	err := d.GetExecutor(ctx).QueryRow(ctx, `
		INSERT INTO candidate_members (candidate_id, full_name, role, position)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		m.CandidateID, m.FullName, m.Role, m.Position).Scan(&m.ID)
	if err != nil {
		return 0, fmt.Errorf("insert member for candidate %d: %w", m.CandidateID, err)
	}
	return m.ID, nil
}

const candidateColumns = `id, name, list_name, image_ref, manifesto, election_id, raw_vote_counter`

func (d *DB) GetCandidate(ctx context.Context, id int64) (*vote.Candidate, error) {
	var c vote.Candidate
	err := d.GetExecutor(ctx).QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.ListName, &c.ImageRef, &c.Manifesto, &c.ElectionID, &c.RawVoteCounter)
	if postgres.IsNoRows(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}
	return &c, nil
}

func (d *DB) ListCandidates(ctx context.Context, electionID *int64) ([]vote.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	var args []any
	if electionID != nil {
		query += ` WHERE election_id = $1 OR election_id IS NULL`
		args = append(args, *electionID)
	}
	query += ` ORDER BY id`

	rows, err := d.GetExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := []vote.Candidate{}
	index := map[int64]int{}
	for rows.Next() {
		var c vote.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.ListName, &c.ImageRef, &c.Manifesto, &c.ElectionID, &c.RawVoteCounter); err != nil {
			rows.Close()
			return nil, err
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	mrows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT id, candidate_id, full_name, role, position FROM candidate_members
		WHERE candidate_id = ANY($1) ORDER BY position, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("list candidate members: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m vote.CandidateMember
		if err := mrows.Scan(&m.ID, &m.CandidateID, &m.FullName, &m.Role, &m.Position); err != nil {
			return nil, err
		}
		i := index[m.CandidateID]
		out[i].Members = append(out[i].Members, m)
	}
	return out, mrows.Err()
}

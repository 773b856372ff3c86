package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
)

func (s *Store) CreateElection(ctx context.Context, e *vote.Election) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO elections (name, start_time, end_time, created_by) VALUES (?, ?, ?, ?)`,
		e.Name, millis(e.StartTime), millis(e.EndTime), e.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert election %s: %w", e.Name, err)
	}
	e.ID, err = res.LastInsertId()
	return e.ID, err
}

func (s *Store) GetElection(ctx context.Context, id int64) (*vote.Election, error) {
	var e vote.Election
	var start, end int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_time, end_time, created_by FROM elections WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &start, &end, &e.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get election %d: %w", id, err)
	}
	e.StartTime, e.EndTime = fromMillis(start), fromMillis(end)
	return &e, nil
}

func (s *Store) ListElections(ctx context.Context) ([]vote.Election, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, start_time, end_time, created_by FROM elections ORDER BY start_time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	defer rows.Close()

	out := []vote.Election{}
	for rows.Next() {
		var e vote.Election
		var start, end int64
		if err := rows.Scan(&e.ID, &e.Name, &start, &end, &e.CreatedBy); err != nil {
			return nil, err
		}
		e.StartTime, e.EndTime = fromMillis(start), fromMillis(end)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateCandidate(ctx context.Context, c *vote.Candidate) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (name, list_name, image_ref, manifesto, election_id) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.ListName, c.ImageRef, c.Manifesto, nullInt(c.ElectionID))
	if err != nil {
		return 0, fmt.Errorf("insert candidate %s: %w", c.Name, err)
	}
	c.ID, err = res.LastInsertId()
	return c.ID, err
}

func (s *Store) AddCandidateMember(ctx context.Context, m *vote.CandidateMember) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO candidate_members (candidate_id, full_name, role, position) VALUES (?, ?, ?, ?)`,
		m.CandidateID, m.FullName, m.Role, m.Position)
	if err != nil {
		return 0, fmt.Errorf("insert member for candidate %d: %w", m.CandidateID, err)
	}
	m.ID, err = res.LastInsertId()
	return m.ID, err
}

const candidateColumns = `id, name, list_name, image_ref, manifesto, election_id, raw_vote_counter`

type scanner interface{ Scan(dest ...any) error }

func scanCandidate(row scanner) (vote.Candidate, error) {
	var c vote.Candidate
	var election sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &c.ListName, &c.ImageRef, &c.Manifesto, &election, &c.RawVoteCounter)
	c.ElectionID = ptrInt(election)
	return c, err
}

func (s *Store) GetCandidate(ctx context.Context, id int64) (*vote.Candidate, error) {
	c, err := scanCandidate(s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}
	return &c, nil
}

func (s *Store) ListCandidates(ctx context.Context, electionID *int64) ([]vote.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	var args []any
	if electionID != nil {
		query += ` WHERE election_id = ? OR election_id IS NULL`
		args = append(args, *electionID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := []vote.Candidate{}
	index := map[int64]int{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
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

	marks := make([]string, 0, len(out))
	ids := make([]any, 0, len(out))
	for _, c := range out {
		marks = append(marks, "?")
		ids = append(ids, c.ID)
	}
	mrows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, full_name, role, position FROM candidate_members
		WHERE candidate_id IN (`+strings.Join(marks, ",")+`) ORDER BY position, id`, ids...)
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

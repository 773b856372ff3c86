package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreSuite exercises a db.Store implementation. open must return an
// empty store.
func RunStoreSuite(t *testing.T, open func(t *testing.T) db.Store) {
	t.Run("voters", func(t *testing.T) { testVoters(t, open(t)) })
	t.Run("elections and candidates", func(t *testing.T) { testCandidates(t, open(t)) })
	t.Run("one vote per election", func(t *testing.T) { testDuplicateVote(t, open(t)) })
	t.Run("finalize severs link", func(t *testing.T) { testFinalize(t, open(t)) })
	t.Run("mirror failure keeps vote", func(t *testing.T) { testMirrorFailure(t, open(t)) })
	t.Run("pending votes", func(t *testing.T) { testPending(t, open(t)) })
	t.Run("ledger records", func(t *testing.T) { testLedgerRecords(t, open(t)) })
}

func testVoters(t *testing.T, s db.Store) {
	ctx := context.Background()
	addr := Address(1)
	linked := Voter(t, s, "C-1", true, addr)
	Voter(t, s, "C-2", false, "")
	ineligible := &vote.Voter{ControlNumber: "C-3"}
	_, err := s.CreateVoter(ctx, ineligible)
	require.NoError(t, err)

	got, err := s.VoterByAccount(ctx, *linked.AccountID)
	require.NoError(t, err)
	assert.Equal(t, linked.ID, got.ID)
	assert.Equal(t, addr, got.LedgerAddress)
	assert.True(t, got.Linked())

	got, err = s.VoterByControlNumber(ctx, "C-2")
	require.NoError(t, err)
	assert.False(t, got.Linked())

	_, err = s.VoterByID(ctx, 999)
	assert.ErrorIs(t, err, db.ErrNotFound)

	acct, err := s.AccountByUsername(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, SecretHash(), acct.PasswordHash)
	_, err = s.AccountByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, db.ErrNotFound)
	byID, err := s.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "C-1", byID.Username)
	_, err = s.AccountByID(ctx, 999)
	assert.ErrorIs(t, err, db.ErrNotFound)

	n, err := s.CountEligibleVoters(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = s.CreateVoter(ctx, &vote.Voter{ControlNumber: "X1", LedgerAddress: "NOT-AN-ADDRESS"})
	assert.ErrorIs(t, err, vote.ErrInvalidAddress)
	_, err = s.VoterByControlNumber(ctx, "X1")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testCandidates(t *testing.T, s db.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	older := Election(t, s, "2024", now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	newer := Election(t, s, "2025", now, now.Add(time.Hour))

	list, err := s.ListElections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.True(t, list[0].StartTime.Equal(now))

	a := Candidate(t, s, "A", &older.ID)
	b := Candidate(t, s, "B", &newer.ID)
	legacy := Candidate(t, s, "Legacy", nil)
	for i, name := range []string{"second", "first"} {
		_, err := s.AddCandidateMember(ctx, &vote.CandidateMember{CandidateID: b.ID, FullName: name, Role: "member", Position: 1 - i})
		require.NoError(t, err)
	}

	got, err := s.ListCandidates(ctx, &newer.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, legacy.ID, got[1].ID)
	require.Len(t, got[0].Members, 2)
	assert.Equal(t, "first", got[0].Members[0].FullName)
	assert.Nil(t, got[1].ElectionID)

	all, err := s.ListCandidates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	c, err := s.GetCandidate(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, c.ElectionID)
	assert.Equal(t, older.ID, *c.ElectionID)
	_, err = s.GetElection(ctx, 999)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testDuplicateVote(t *testing.T, s db.Store) {
	ctx := context.Background()
	e := ActiveElection(t, s, "e")
	other := ActiveElection(t, s, "other")
	c := Candidate(t, s, "A", nil)
	v := Voter(t, s, "C-1", true, "")

	_, err := s.InsertVote(ctx, v.ID, c.ID, e.ID, time.Now())
	require.NoError(t, err)
	_, err = s.InsertVote(ctx, v.ID, c.ID, e.ID, time.Now())
	assert.ErrorIs(t, err, db.ErrDuplicateVote)

	_, err = s.InsertVote(ctx, v.ID, c.ID, other.ID, time.Now())
	require.NoError(t, err)

	has, err := s.HasVote(ctx, v.ID, e.ID)
	require.NoError(t, err)
	assert.True(t, has)

	n, err := s.CountVotes(ctx, &e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.CountVotes(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func testFinalize(t *testing.T, s db.Store) {
	ctx := context.Background()
	e := ActiveElection(t, s, "e")
	c := Candidate(t, s, "A", &e.ID)
	v := Voter(t, s, "C-1", true, "")

	voteID, err := s.InsertVote(ctx, v.ID, c.ID, e.ID, time.Now())
	require.NoError(t, err)
	counter, err := s.RefreshCandidateCounter(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counter)

	mirrorErr, err := s.FinalizeVote(ctx, vote.Finalization{
		VoteID: voteID, TxID: "TX1", CandidateID: c.ID, ElectionID: e.ID, RecordedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mirrorErr)

	voter, err := s.VoterByID(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)

	pending, err := s.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	counts, err := s.MirrorCounts(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{c.ID: 1}, counts)

	counter, err = s.RefreshCandidateCounter(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counter)

	_, err = s.FinalizeVote(ctx, vote.Finalization{VoteID: voteID, TxID: "TX2", CandidateID: c.ID, ElectionID: e.ID, RecordedAt: time.Now()})
	assert.ErrorIs(t, err, db.ErrNotPending)
}

func testMirrorFailure(t *testing.T, s db.Store) {
	ctx := context.Background()
	e := ActiveElection(t, s, "e")
	c := Candidate(t, s, "A", &e.ID)
	v1 := Voter(t, s, "C-1", true, "")
	v2 := Voter(t, s, "C-2", true, "")

	id1, err := s.InsertVote(ctx, v1.ID, c.ID, e.ID, time.Now())
	require.NoError(t, err)
	id2, err := s.InsertVote(ctx, v2.ID, c.ID, e.ID, time.Now())
	require.NoError(t, err)

	_, err = s.FinalizeVote(ctx, vote.Finalization{VoteID: id1, TxID: "SAME", CandidateID: c.ID, ElectionID: e.ID, RecordedAt: time.Now()})
	require.NoError(t, err)
	mirrorErr, err := s.FinalizeVote(ctx, vote.Finalization{VoteID: id2, TxID: "SAME", CandidateID: c.ID, ElectionID: e.ID, RecordedAt: time.Now()})
	require.NoError(t, err)
	assert.Error(t, mirrorErr)

	voter, err := s.VoterByID(ctx, v2.ID)
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)
	pending, err := s.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	counts, err := s.MirrorCounts(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[c.ID])
}

func testPending(t *testing.T, s db.Store) {
	ctx := context.Background()
	e := ActiveElection(t, s, "e")
	c := Candidate(t, s, "A", &e.ID)
	now := time.Now().UTC()

	old := Voter(t, s, "C-1", true, "")
	fresh := Voter(t, s, "C-2", true, "")
	oldID, err := s.InsertVote(ctx, old.ID, c.ID, e.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = s.InsertVote(ctx, fresh.ID, c.ID, e.ID, now)
	require.NoError(t, err)

	pending, err := s.PendingVotes(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, oldID, pending[0].VoteID)
	assert.Equal(t, c.ID, pending[0].CandidateID)
	assert.Equal(t, e.ID, pending[0].ElectionID)

	pending, err = s.PendingVotes(ctx, now.Add(time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, s.RecordSubmission(ctx, oldID, "SLOW"))
	pending, err = s.PendingVotes(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SLOW", pending[0].LastTxID)
}

func testLedgerRecords(t *testing.T, s db.Store) {
	ctx := context.Background()
	e := ActiveElection(t, s, "Council")
	c := Candidate(t, s, "A", &e.ID)
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"T1", "T2", "T3"} {
		v := Voter(t, s, "C-"+id, true, "")
		voteID, err := s.InsertVote(ctx, v.ID, c.ID, e.ID, base)
		require.NoError(t, err)
		_, err = s.FinalizeVote(ctx, vote.Finalization{
			VoteID: voteID, TxID: id, CandidateID: c.ID, ElectionID: e.ID,
			RecordedAt: base.Add(time.Duration(i) * time.Minute), Simulated: i == 2,
		})
		require.NoError(t, err)
	}

	recs, err := s.RecentLedgerRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "T3", recs[0].TxID)
	assert.True(t, recs[0].Simulated)
	assert.Equal(t, "T2", recs[1].TxID)
	assert.Equal(t, "A", recs[0].CandidateName)
	assert.Equal(t, "Council", recs[0].ElectionName)

	n, err := s.CountLedgerRecords(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

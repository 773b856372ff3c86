package ballot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/dbtest"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingNotifier struct{ events []Event }

func (r *recordingNotifier) VoteRecorded(_ context.Context, ev Event) { r.events = append(r.events, ev) }

type fixture struct {
	store    db.Store
	backend  *mockBackend
	notifier *recordingNotifier
	svc      *Service
	election *vote.Election
	cand     *vote.Candidate
	voter    *vote.Voter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := dbtest.OpenSQLite(t)
	f := &fixture{store: s, backend: &mockBackend{}, notifier: &recordingNotifier{}}
	f.election = dbtest.ActiveElection(t, s, "Council")
	f.cand = dbtest.Candidate(t, s, "A", &f.election.ID)
	f.voter = dbtest.Voter(t, s, "C-1", true, "")
	f.rebuild(t, s, storeCounter{counts: s.MirrorCounts})
	return f
}

// rebuild swaps the service's store and counter, keeping the fixture data.
func (f *fixture) rebuild(t *testing.T, store db.Store, counter Counter) {
	logger := zaptest.NewLogger(t)
	f.svc = NewService(Options{
		Store:    store,
		Gate:     NewGate(store, nil, nil, logger),
		Anon:     NewAnonymizer(f.backend, logger),
		Counter:  counter,
		Notifier: f.notifier,
		Logger:   logger,
	})
}

// brokenFinalize fails every FinalizeVote after the ledger write.
type brokenFinalize struct {
	db.Store
}

func (brokenFinalize) FinalizeVote(context.Context, vote.Finalization) (error, error) {
	return nil, errors.New("disk full")
}

type invalidatingCounter struct {
	storeCounter
	invalidations int
}

func (c *invalidatingCounter) Invalidate() { c.invalidations++ }

func TestCastVoteConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{TxID: "TX1", ConfirmedRound: 5}, nil)

	res, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID, ElectionID: &f.election.ID})
	require.NoError(t, err)
	assert.Equal(t, "TX1", res.TxID)
	assert.EqualValues(t, 1, res.CandidateVotes)
	assert.EqualValues(t, 1, res.TotalVotes)
	assert.Empty(t, res.LedgerError)

	// the note never names the voter
	require.Len(t, f.backend.notes, 1)
	assert.NotContains(t, string(f.backend.notes[0]), f.voter.ControlNumber)
	assert.JSONEq(t, string(EncodeNote(f.election.ID, f.cand.ID)), string(f.backend.notes[0]))

	voter, err := f.store.VoterByID(ctx, f.voter.ID)
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)

	pending, err := f.store.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "confirmed vote keeps no candidate link")

	cand, err := f.store.GetCandidate(ctx, f.cand.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cand.RawVoteCounter)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "TX1", f.notifier.events[0].TxID)
}

func TestCastVoteElectionFromCandidate(t *testing.T) {
	f := newFixture(t)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{TxID: "TX1"}, nil)

	res, err := f.svc.CastVote(context.Background(), Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Equal(t, f.election.ID, res.ElectionID)
}

func TestCastVoteRejectsUnresolvableElection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	legacy := dbtest.Candidate(t, f.store, "Legacy", nil)
	other := dbtest.ActiveElection(t, f.store, "Other")

	_, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: legacy.ID})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID, ElectionID: &other.ID})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: 999})
	assert.ErrorIs(t, err, ErrNotFound)
	f.backend.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestCastVoteLedgerFailureLeavesVotePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{}, newError(KindSubmissionFailed, "submit", assert.AnError))

	res, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Empty(t, res.TxID)
	assert.Equal(t, KindSubmissionFailed, res.LedgerError)
	assert.NotZero(t, res.VoteID)

	pending, err := f.store.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.cand.ID, pending[0].CandidateID)

	counts, err := f.store.MirrorCounts(ctx, f.election.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)

	voter, err := f.store.VoterByID(ctx, f.voter.ID)
	require.NoError(t, err)
	assert.False(t, voter.HasVoted)
	assert.Empty(t, f.notifier.events)

	// the pending vote still blocks a second ballot
	_, err = f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	f.backend.AssertNumberOfCalls(t, "Submit", 1)
}

func TestCastVoteTimeoutRemembersSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	timeout := newError(KindConfirmationTimeout, "confirm", assert.AnError)
	timeout.TxID = "SLOW"
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{}, timeout)

	res, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Equal(t, KindConfirmationTimeout, res.LedgerError)

	pending, err := f.store.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SLOW", pending[0].LastTxID)
}

func TestRetryReusesConfirmedSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	voteID, err := f.store.InsertVote(ctx, f.voter.ID, f.cand.ID, f.election.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.RecordSubmission(ctx, voteID, "SLOW"))
	f.backend.On("Lookup", mock.Anything, "SLOW").Return(TxConfirmed, Receipt{TxID: "SLOW", ConfirmedRound: 8}, nil)

	pending, err := f.svc.PendingVotes(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	outcome, err := f.svc.Retry(ctx, pending[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	f.backend.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	counts, err := f.store.MirrorCounts(ctx, f.election.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[f.cand.ID])
}

func TestRetryWaitsOnPendingSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.On("Lookup", mock.Anything, "SLOW").Return(TxPending, Receipt{}, nil)

	outcome, err := f.svc.Retry(ctx, vote.PendingVote{VoteID: 1, CandidateID: f.cand.ID, ElectionID: f.election.ID, LastTxID: "SLOW"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStillPending, outcome)
}

func TestRetryResubmits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	voteID, err := f.store.InsertVote(ctx, f.voter.ID, f.cand.ID, f.election.ID, time.Now())
	require.NoError(t, err)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{TxID: "TX2"}, nil)

	outcome, err := f.svc.Retry(ctx, vote.PendingVote{VoteID: voteID, CandidateID: f.cand.ID, ElectionID: f.election.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	voter, err := f.store.VoterByID(ctx, f.voter.ID)
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)
}

func TestRetryFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	voteID, err := f.store.InsertVote(ctx, f.voter.ID, f.cand.ID, f.election.ID, time.Now())
	require.NoError(t, err)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{}, newError(KindSubmissionFailed, "submit", assert.AnError))

	outcome, err := f.svc.Retry(ctx, vote.PendingVote{VoteID: voteID, CandidateID: f.cand.ID, ElectionID: f.election.ID})
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	pending, err := f.store.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCastVoteFinalizesAfterRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	f.backend.On("Submit", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(Receipt{TxID: "TXC", ConfirmedRound: 7}, nil)

	res, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Equal(t, "TXC", res.TxID)
	assert.Empty(t, res.LedgerError)

	bg := context.Background()
	pending, err := f.store.PendingVotes(bg, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	counts, err := f.store.MirrorCounts(bg, f.election.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[f.cand.ID])

	voter, err := f.store.VoterByID(bg, f.voter.ID)
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)
	require.Len(t, f.notifier.events, 1)
}

func TestCastVoteTimeoutRecordedAfterRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	timeout := newError(KindConfirmationTimeout, "confirm", assert.AnError)
	timeout.TxID = "SLOW"
	f.backend.On("Submit", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(Receipt{}, timeout)

	res, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Equal(t, KindConfirmationTimeout, res.LedgerError)

	pending, err := f.store.PendingVotes(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SLOW", pending[0].LastTxID)
}

func TestCastVoteFinalizeFailureKeepsSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rebuild(t, brokenFinalize{Store: f.store}, storeCounter{counts: f.store.MirrorCounts})
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{TxID: "TXF", ConfirmedRound: 3}, nil)

	res, err := f.svc.CastVote(ctx, Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Empty(t, res.TxID, "txid is only reported for finalized votes")
	assert.Equal(t, KindSubmissionFailed, res.LedgerError)
	assert.Empty(t, f.notifier.events)

	pending, err := f.store.PendingVotes(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "TXF", pending[0].LastTxID)
}

func TestCastVoteInvalidatesCachedCounts(t *testing.T) {
	f := newFixture(t)
	counter := &invalidatingCounter{storeCounter: storeCounter{counts: f.store.MirrorCounts}}
	f.rebuild(t, f.store, counter)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{TxID: "TX1"}, nil)

	_, err := f.svc.CastVote(context.Background(), Request{VoterID: f.voter.ID, CandidateID: f.cand.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counter.invalidations)
}

package ballot

import (
	"context"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSweeperRetriesPendingVotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := dbtest.Voter(t, f.store, "C-2", true, "")
	third := dbtest.Voter(t, f.store, "C-3", true, "")

	var ids []int64
	for _, v := range []int64{f.voter.ID, other.ID, third.ID} {
		id, err := f.store.InsertVote(ctx, v, f.cand.ID, f.election.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, f.store.RecordSubmission(ctx, ids[1], "SLOW"))

	f.backend.On("Lookup", mock.Anything, "SLOW").Return(TxPending, Receipt{}, nil)
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{TxID: "TX-A"}, nil).Once()
	f.backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{}, newError(KindLedgerUnavailable, "submit", assert.AnError)).Once()

	s := NewSweeper(f.svc, 1, zaptest.NewLogger(t))
	defer s.Close()

	report, err := s.Run(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 3, Confirmed: 1, Pending: 1, Failed: 1}, report)
	assert.Zero(t, s.InFlight())

	pending, err := f.store.PendingVotes(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSweeperSkipsVotesInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.store.InsertVote(ctx, f.voter.ID, f.cand.ID, f.election.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	s := NewSweeper(f.svc, 2, zaptest.NewLogger(t))
	defer s.Close()
	s.inflight.Store(id, time.Now())

	report, err := s.Run(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 1, Skipped: 1}, report)
	f.backend.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSweeperNothingPending(t *testing.T) {
	f := newFixture(t)
	s := NewSweeper(f.svc, 0, zaptest.NewLogger(t))
	defer s.Close()

	report, err := s.Run(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

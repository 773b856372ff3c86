package ballot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/db/dbtest"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestGateRules(t *testing.T) {
	ctx := context.Background()
	s := dbtest.OpenSQLite(t)
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	e := dbtest.Election(t, s, "e", start, end)
	c := dbtest.Candidate(t, s, "A", &e.ID)

	linked := dbtest.Voter(t, s, "C-1", true, "")
	unlinked := dbtest.Voter(t, s, "C-2", false, "")
	voted := dbtest.Voter(t, s, "C-3", true, "")
	_, err := s.InsertVote(ctx, voted.ID, c.ID, e.ID, start)
	require.NoError(t, err)

	cases := []struct {
		name    string
		voterID int64
		now     time.Time
		want    error
	}{
		{"eligible", linked.ID, start.Add(time.Hour), nil},
		{"start is inclusive", linked.ID, start, nil},
		{"end is inclusive", linked.ID, end, nil},
		{"unknown voter", 999, start, ErrNotRegistered},
		{"unlinked voter", unlinked.ID, start, ErrNotRegistered},
		{"unlinked beats closed election", unlinked.ID, end.Add(time.Hour), ErrNotRegistered},
		{"before start", linked.ID, start.Add(-time.Second), ErrElectionNotActive},
		{"after end", linked.ID, end.Add(time.Second), ErrElectionNotActive},
		{"closed beats already voted", voted.ID, end.Add(time.Second), ErrElectionNotActive},
		{"already voted", voted.ID, start, ErrAlreadyVoted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGate(s, nil, fixedClock(tc.now), zaptest.NewLogger(t))
			d, err := g.CanVote(ctx, tc.voterID, e.ID)
			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, tc.voterID, d.Voter.ID)
				assert.Equal(t, e.ID, d.Election.ID)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("unknown election", func(t *testing.T) {
		g := NewGate(s, nil, fixedClock(start), zaptest.NewLogger(t))
		_, err := g.CanVote(ctx, linked.ID, 999)
		assert.ErrorIs(t, err, ErrElectionNotActive)
	})
}

func TestGateLedgerRegistration(t *testing.T) {
	ctx := context.Background()
	s := dbtest.OpenSQLite(t)
	e := dbtest.ActiveElection(t, s, "e")
	addr := dbtest.Address(7)
	withAddr := dbtest.Voter(t, s, "C-1", true, addr)
	noAddr := dbtest.Voter(t, s, "C-2", true, "")

	t.Run("registered", func(t *testing.T) {
		checker := &mockChecker{}
		checker.On("IsRegistered", mock.Anything, addr).Return(true, nil)
		g := NewGate(s, checker, nil, zaptest.NewLogger(t))
		_, err := g.CanVote(ctx, withAddr.ID, e.ID)
		require.NoError(t, err)
		checker.AssertExpectations(t)
	})

	t.Run("not opted in", func(t *testing.T) {
		checker := &mockChecker{}
		checker.On("IsRegistered", mock.Anything, addr).Return(false, nil)
		g := NewGate(s, checker, nil, zaptest.NewLogger(t))
		_, err := g.CanVote(ctx, withAddr.ID, e.ID)
		assert.ErrorIs(t, err, ErrNotLedgerRegistered)
	})

	t.Run("ledger unreachable fails closed", func(t *testing.T) {
		checker := &mockChecker{}
		checker.On("IsRegistered", mock.Anything, addr).Return(false, errors.New("connection refused"))
		g := NewGate(s, checker, nil, zaptest.NewLogger(t))
		_, err := g.CanVote(ctx, withAddr.ID, e.ID)
		assert.ErrorIs(t, err, ErrNotLedgerRegistered)
	})

	t.Run("no address", func(t *testing.T) {
		checker := &mockChecker{}
		g := NewGate(s, checker, nil, zaptest.NewLogger(t))
		_, err := g.CanVote(ctx, noAddr.ID, e.ID)
		assert.ErrorIs(t, err, ErrNotLedgerRegistered)
		checker.AssertNotCalled(t, "IsRegistered", mock.Anything, mock.Anything)
	})

	t.Run("not required", func(t *testing.T) {
		g := NewGate(s, nil, nil, zaptest.NewLogger(t))
		_, err := g.CanVote(ctx, noAddr.ID, e.ID)
		require.NoError(t, err)
		assert.False(t, g.RegistrationRequired())
	})
}

func TestLedgerRegistrationChecker(t *testing.T) {
	ctx := context.Background()
	addr := ledger.GenerateSigner().Address()

	node := &mockNode{}
	node.On("AccountInfo", mock.Anything, addr).Return(ledgerAccount(addr, 42), nil)
	checker := NewLedgerRegistrationChecker(node, 42)
	ok, err := checker.IsRegistered(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewLedgerRegistrationChecker(node, 7).IsRegistered(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = checker.IsRegistered(ctx, "not-an-address")
	assert.Error(t, err)
}

func TestAllowListChecker(t *testing.T) {
	ctx := context.Background()
	ok, _ := NewAllowListChecker(nil).IsRegistered(ctx, "ANY")
	assert.True(t, ok)

	list := NewAllowListChecker([]string{"A"})
	ok, _ = list.IsRegistered(ctx, "A")
	assert.True(t, ok)
	ok, _ = list.IsRegistered(ctx, "B")
	assert.False(t, ok)
}

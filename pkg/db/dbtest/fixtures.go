// Package dbtest holds fixtures and a behaviour suite shared by the store
// implementations and by packages that test against a real store.
package dbtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/cesa-network/cesavote/pkg/db/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

// OpenSQLite returns a private in-memory store closed with the test.
func OpenSQLite(t testing.TB) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), zaptest.NewLogger(t), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Address returns a well formed ledger address derived from seed.
func Address(seed byte) string { return types.Address{seed}.String() }

// Election creates an election spanning [start, end].
func Election(t testing.TB, s db.Store, name string, start, end time.Time) *vote.Election {
	t.Helper()
	e := &vote.Election{Name: name, StartTime: start, EndTime: end, CreatedBy: "test"}
	_, err := s.CreateElection(context.Background(), e)
	require.NoError(t, err)
	return e
}

// ActiveElection creates an election that opened an hour ago and closes in an hour.
func ActiveElection(t testing.TB, s db.Store, name string) *vote.Election {
	now := time.Now().UTC()
	return Election(t, s, name, now.Add(-time.Hour), now.Add(time.Hour))
}

// Candidate creates a candidate in electionID, or an unassigned one when nil.
func Candidate(t testing.TB, s db.Store, name string, electionID *int64) *vote.Candidate {
	t.Helper()
	c := &vote.Candidate{Name: name, ListName: name + " list", ElectionID: electionID}
	_, err := s.CreateCandidate(context.Background(), c)
	require.NoError(t, err)
	return c
}

// Voter creates an eligible voter. linked also creates a login account whose
// username equals the control number and whose password is Password.
func Voter(t testing.TB, s db.Store, controlNumber string, linked bool, address string) *vote.Voter {
	t.Helper()
	ctx := context.Background()
	v := &vote.Voter{ControlNumber: controlNumber, IsEligible: true, LedgerAddress: address}
	if linked {
		id, err := s.CreateAccount(ctx, controlNumber, SecretHash())
		require.NoError(t, err)
		v.AccountID = &id
	}
	_, err := s.CreateVoter(ctx, v)
	require.NoError(t, err)
	return v
}

// Password is the login password of every fixture account.
const Password = "secret"

var (
	hashOnce   sync.Once
	secretHash string
)

// SecretHash is a bcrypt hash of Password at minimum cost.
func SecretHash() string {
	hashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		secretHash = string(h)
	})
	return secretHash
}

func Int64(v int64) *int64 { return &v }

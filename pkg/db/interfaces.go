package db

import (
	"context"
	"errors"
	"time"

	"github.com/cesa-network/cesavote/pkg/db/models/vote"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateVote is returned when (voter, election) already has a vote.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrNotPending is returned when finalizing a vote that is already valid.
	ErrNotPending = errors.New("vote is not pending")
)

// VoterStore covers accounts and voter registration.
type VoterStore interface {
	CreateAccount(ctx context.Context, username, passwordHash string) (int64, error)
	AccountByUsername(ctx context.Context, username string) (*vote.Account, error)
	AccountByID(ctx context.Context, id int64) (*vote.Account, error)
	CreateVoter(ctx context.Context, v *vote.Voter) (int64, error)
	VoterByID(ctx context.Context, id int64) (*vote.Voter, error)
	VoterByAccount(ctx context.Context, accountID int64) (*vote.Voter, error)
	VoterByControlNumber(ctx context.Context, controlNumber string) (*vote.Voter, error)
	CountEligibleVoters(ctx context.Context) (int64, error)
}

// ElectionStore covers elections and their candidates.
type ElectionStore interface {
	CreateElection(ctx context.Context, e *vote.Election) (int64, error)
	GetElection(ctx context.Context, id int64) (*vote.Election, error)
	// ListElections returns elections, most recent start first.
	ListElections(ctx context.Context) ([]vote.Election, error)
	CreateCandidate(ctx context.Context, c *vote.Candidate) (int64, error)
	AddCandidateMember(ctx context.Context, m *vote.CandidateMember) (int64, error)
	GetCandidate(ctx context.Context, id int64) (*vote.Candidate, error)
	// ListCandidates returns candidates of electionID plus unassigned ones,
	// or every candidate when electionID is nil. Members are loaded.
	ListCandidates(ctx context.Context, electionID *int64) ([]vote.Candidate, error)
}

// BallotStore covers votes and the ledger mirror. No method returns a voter
// together with a candidate.
type BallotStore interface {
	HasVote(ctx context.Context, voterID, electionID int64) (bool, error)
	// InsertVote returns ErrDuplicateVote when the voter already voted.
	InsertVote(ctx context.Context, voterID, candidateID, electionID int64, at time.Time) (int64, error)
	// FinalizeVote severs the candidate link, marks the vote valid, flags the
	// voter and writes the mirror record in one transaction. A mirror insert
	// failure does not abort the transaction and is returned as mirrorErr.
	FinalizeVote(ctx context.Context, f vote.Finalization) (mirrorErr error, err error)
	// RecordSubmission remembers the txid of a submission that was not
	// confirmed in time so a later retry can look it up first.
	RecordSubmission(ctx context.Context, voteID int64, txid string) error
	// PendingVotes lists unconfirmed votes created at or before olderThan.
	PendingVotes(ctx context.Context, olderThan time.Time, limit int) ([]vote.PendingVote, error)
	// CountVotes counts vote rows, across all elections when electionID is nil.
	CountVotes(ctx context.Context, electionID *int64) (int64, error)
	// MirrorCounts groups mirror records of the election by candidate.
	MirrorCounts(ctx context.Context, electionID int64) (map[int64]int64, error)
	// CountLedgerRecords counts mirror records across every election.
	CountLedgerRecords(ctx context.Context) (int64, error)
	RecentLedgerRecords(ctx context.Context, limit int) ([]vote.LedgerRecordView, error)
	// RefreshCandidateCounter recomputes the advisory counter as pending
	// linked votes plus mirror records and returns it.
	RefreshCandidateCounter(ctx context.Context, candidateID int64) (int64, error)
}

// Store is implemented by the postgres and sqlite backends.
type Store interface {
	VoterStore
	ElectionStore
	BallotStore
	Ping(ctx context.Context) error
	Close() error
}

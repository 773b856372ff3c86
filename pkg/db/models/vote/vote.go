package vote

import "time"

// Vote is the local record of a ballot. CandidateID is cleared once the
// ballot is confirmed on the ledger.
type Vote struct {
	ID          int64
	VoterID     int64
	CandidateID *int64
	ElectionID  int64
	CreatedAt   time.Time
	LedgerTxID  string
	Valid       bool
}

// PendingVote is an unconfirmed ballot waiting for a ledger write. It carries
// no voter reference.
type PendingVote struct {
	VoteID      int64
	CandidateID int64
	ElectionID  int64
	CreatedAt   time.Time
	// LastTxID is the last submission that timed out, if any.
	LastTxID string
}

// LedgerRecord mirrors one confirmed ledger transaction. It never references
// a voter.
type LedgerRecord struct {
	ID          int64
	TxID        string
	CandidateID int64
	ElectionID  int64
	RecordedAt  time.Time
	Simulated   bool
}

// LedgerRecordView is a LedgerRecord with display names resolved.
type LedgerRecordView struct {
	LedgerRecord
	CandidateName string
	ElectionName  string
}

// Finalization is what gets written once a ballot is confirmed.
type Finalization struct {
	VoteID      int64
	TxID        string
	CandidateID int64
	ElectionID  int64
	Simulated   bool
	RecordedAt  time.Time
}

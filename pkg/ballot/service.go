package ballot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"go.uber.org/zap"
)

// Counter reads reconciled tallies.
type Counter interface {
	CountsForElection(ctx context.Context, electionID int64) map[int64]int64
	TotalVotes(ctx context.Context, electionID int64) int64
}

const bookkeepingTimeout = 5 * time.Second

// invalidator is implemented by counters that cache ledger reads.
type invalidator interface {
	Invalidate()
}

// Event is published after a ballot is durably recorded.
type Event struct {
	ElectionID  int64     `json:"election_id"`
	CandidateID int64     `json:"candidate_id"`
	TxID        string    `json:"txid"`
	Simulated   bool      `json:"simulated"`
	At          time.Time `json:"at"`
}

// Notifier fans out vote events. Delivery is best effort.
type Notifier interface {
	VoteRecorded(ctx context.Context, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) VoteRecorded(context.Context, Event) {}

// Request is a voter's ballot. ElectionID is optional; the candidate's
// election is used when it is nil.
type Request struct {
	VoterID     int64
	CandidateID int64
	ElectionID  *int64
}

// Result is returned for every accepted ballot, including ones whose ledger
// write failed; TxID is empty in that case.
type Result struct {
	VoteID         int64
	ElectionID     int64
	CandidateVotes int64
	TotalVotes     int64
	TxID           string
	Simulated      bool
	// LedgerError is the kind of ledger failure, empty on success.
	LedgerError Kind
}

// Service runs the ballot flow: gate, local record, ledger write, unlink.
type Service struct {
	store    db.Store
	gate     *Gate
	anon     *Anonymizer
	counter  Counter
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger
}

type Options struct {
	Store    db.Store
	Gate     *Gate
	Anon     *Anonymizer
	Counter  Counter
	Notifier Notifier
	Now      func() time.Time
	Logger   *zap.Logger
}

func NewService(o Options) *Service {
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Service{
		store:    o.Store,
		gate:     o.Gate,
		anon:     o.Anon,
		counter:  o.Counter,
		notifier: o.Notifier,
		now:      o.Now,
		logger:   o.Logger,
	}
}

func (s *Service) Gate() *Gate { return s.gate }

// Simulated reports whether ballots go to the simulated ledger.
func (s *Service) Simulated() bool { return s.anon.Simulated() }

// ResolveElection picks the election a ballot for candidate belongs to.
func ResolveElection(candidate *vote.Candidate, requested *int64) (int64, error) {
	switch {
	case requested != nil:
		if !candidate.BelongsTo(*requested) {
			return 0, newError(KindInvalid, "resolve election", errors.New("candidate does not belong to this election"))
		}
		return *requested, nil
	case candidate.ElectionID != nil:
		return *candidate.ElectionID, nil
	}
	return 0, newError(KindInvalid, "resolve election", errors.New("election_id is required"))
}

// CastVote records a ballot. Eligibility failures are returned as *Error and
// nothing is written. Ledger failures are not errors: the ballot stays
// pending and Result.TxID is empty.
func (s *Service) CastVote(ctx context.Context, req Request) (Result, error) {
	candidate, err := s.store.GetCandidate(ctx, req.CandidateID)
	if errors.Is(err, db.ErrNotFound) {
		return Result{}, newError(KindNotFound, "cast vote", errors.New("candidate not found"))
	}
	if err != nil {
		return Result{}, fmt.Errorf("load candidate: %w", err)
	}
	electionID, err := ResolveElection(candidate, req.ElectionID)
	if err != nil {
		return Result{}, err
	}

	if _, err := s.gate.CanVote(ctx, req.VoterID, electionID); err != nil {
		return Result{}, err
	}

	voteID, err := s.store.InsertVote(ctx, req.VoterID, candidate.ID, electionID, s.now())
	if errors.Is(err, db.ErrDuplicateVote) {
		return Result{}, newError(KindAlreadyVoted, "cast vote", nil)
	}
	if err != nil {
		return Result{}, fmt.Errorf("record vote: %w", err)
	}
	s.refreshCounter(ctx, candidate.ID)

	res := Result{VoteID: voteID, ElectionID: electionID}
	receipt, err := s.anon.Submit(ctx, electionID, candidate.ID)
	switch {
	case err != nil:
		res.LedgerError = s.onLedgerFailure(ctx, voteID, err)
	case s.finalize(ctx, vote.PendingVote{VoteID: voteID, CandidateID: candidate.ID, ElectionID: electionID}, receipt):
		res.TxID = receipt.TxID
		res.Simulated = receipt.Simulated
	default:
		// on the ledger but not finalized; the retrier finds it by txid
		res.LedgerError = KindSubmissionFailed
	}

	counts := s.counter.CountsForElection(ctx, electionID)
	res.CandidateVotes = counts[candidate.ID]
	res.TotalVotes = s.counter.TotalVotes(ctx, electionID)
	return res, nil
}

// bookkeeping returns a context for the writes that follow a ledger call.
// They must not be lost to a cancelled request once the ledger has the note.
func bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func (s *Service) onLedgerFailure(ctx context.Context, voteID int64, err error) Kind {
	ctx, cancel := bookkeeping(ctx)
	defer cancel()

	kind := KindOf(err)
	s.logger.Warn("Ledger write failed, vote left pending",
		zap.Int64("vote_id", voteID),
		zap.String("kind", string(kind)),
		zap.Error(err))

	var e *Error
	if errors.As(err, &e) && e.TxID != "" {
		if recErr := s.store.RecordSubmission(ctx, voteID, e.TxID); recErr != nil {
			s.logger.Warn("Failed to remember unconfirmed submission",
				zap.Int64("vote_id", voteID), zap.String("txid", e.TxID), zap.Error(recErr))
		}
	}
	return kind
}

// finalize commits a confirmed ballot. Failures here are logged: the ledger
// write already happened and cannot be undone. When the commit fails the
// txid is remembered so a retry reuses the submission instead of writing a
// second note.
func (s *Service) finalize(ctx context.Context, p vote.PendingVote, receipt Receipt) bool {
	ctx, cancel := bookkeeping(ctx)
	defer cancel()

	mirrorErr, err := s.store.FinalizeVote(ctx, vote.Finalization{
		VoteID:      p.VoteID,
		TxID:        receipt.TxID,
		CandidateID: p.CandidateID,
		ElectionID:  p.ElectionID,
		Simulated:   receipt.Simulated,
		RecordedAt:  s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to finalize confirmed vote",
			zap.Int64("vote_id", p.VoteID), zap.String("txid", receipt.TxID), zap.Error(err))
		if !receipt.Simulated {
			if recErr := s.store.RecordSubmission(ctx, p.VoteID, receipt.TxID); recErr != nil {
				s.logger.Error("Failed to remember confirmed submission",
					zap.Int64("vote_id", p.VoteID), zap.String("txid", receipt.TxID), zap.Error(recErr))
			}
		}
		return false
	}
	if mirrorErr != nil {
		s.logger.Warn("Ledger mirror record not written",
			zap.String("txid", receipt.TxID), zap.Error(mirrorErr))
	}
	s.refreshCounter(ctx, p.CandidateID)
	if inv, ok := s.counter.(invalidator); ok {
		inv.Invalidate()
	}
	s.notifier.VoteRecorded(ctx, Event{
		ElectionID:  p.ElectionID,
		CandidateID: p.CandidateID,
		TxID:        receipt.TxID,
		Simulated:   receipt.Simulated,
		At:          s.now().UTC(),
	})
	return true
}

func (s *Service) refreshCounter(ctx context.Context, candidateID int64) {
	if _, err := s.store.RefreshCandidateCounter(ctx, candidateID); err != nil {
		s.logger.Warn("Failed to refresh candidate counter",
			zap.Int64("candidate_id", candidateID), zap.Error(err))
	}
}

// Outcome is the result of one retry attempt.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeStillPending Outcome = "still_pending"
	OutcomeFailed       Outcome = "failed"
)

// PendingVotes lists ballots that were accepted but never confirmed.
func (s *Service) PendingVotes(ctx context.Context, olderThan time.Duration, limit int) ([]vote.PendingVote, error) {
	return s.store.PendingVotes(ctx, s.now().Add(-olderThan), limit)
}

// Retry brings one pending ballot to the ledger. An earlier submission that
// is still known to the node is reused rather than written twice.
func (s *Service) Retry(ctx context.Context, p vote.PendingVote) (Outcome, error) {
	if p.LastTxID != "" {
		state, receipt, err := s.anon.Lookup(ctx, p.LastTxID)
		if err != nil {
			return OutcomeFailed, err
		}
		switch state {
		case TxConfirmed:
			if !s.finalize(ctx, p, receipt) {
				return OutcomeFailed, fmt.Errorf("finalize vote %d", p.VoteID)
			}
			return OutcomeConfirmed, nil
		case TxPending:
			return OutcomeStillPending, nil
		}
	}

	receipt, err := s.anon.Submit(ctx, p.ElectionID, p.CandidateID)
	if err != nil {
		s.onLedgerFailure(ctx, p.VoteID, err)
		if KindOf(err) == KindConfirmationTimeout {
			return OutcomeStillPending, err
		}
		return OutcomeFailed, err
	}
	if !s.finalize(ctx, p, receipt) {
		return OutcomeFailed, fmt.Errorf("finalize vote %d", p.VoteID)
	}
	return OutcomeConfirmed, nil
}

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

// GateStore is the read-only storage the gate needs.
type GateStore interface {
	VoterByID(ctx context.Context, id int64) (*vote.Voter, error)
	GetElection(ctx context.Context, id int64) (*vote.Election, error)
	HasVote(ctx context.Context, voterID, electionID int64) (bool, error)
}

// Decision carries what the gate loaded so callers need not read it again.
type Decision struct {
	Voter    *vote.Voter
	Election *vote.Election
}

// Gate decides whether a voter may vote in an election. It never writes.
type Gate struct {
	store   GateStore
	checker RegistrationChecker
	now     func() time.Time
	logger  *zap.Logger
}

// NewGate builds a gate. A nil checker disables the ledger registration rule.
func NewGate(store GateStore, checker RegistrationChecker, now func() time.Time, logger *zap.Logger) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, checker: checker, now: now, logger: logger}
}

// CanVote applies the rules in order and stops at the first failure:
// registration, election window, prior vote, ledger registration.
func (g *Gate) CanVote(ctx context.Context, voterID, electionID int64) (Decision, error) {
	voter, err := g.store.VoterByID(ctx, voterID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && !voter.Linked()) {
		return Decision{}, newError(KindNotRegistered, "eligibility", nil)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load voter %d: %w", voterID, err)
	}

	election, err := g.store.GetElection(ctx, electionID)
	if errors.Is(err, db.ErrNotFound) {
		return Decision{}, newError(KindElectionNotActive, "eligibility", nil)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load election %d: %w", electionID, err)
	}
	if !election.Active(g.now()) {
		return Decision{}, newError(KindElectionNotActive, "eligibility", nil)
	}

	voted, err := g.store.HasVote(ctx, voterID, electionID)
	if err != nil {
		return Decision{}, fmt.Errorf("check prior vote: %w", err)
	}
	if voted {
		return Decision{}, newError(KindAlreadyVoted, "eligibility", nil)
	}

	if err := g.CheckRegistration(ctx, voter); err != nil {
		return Decision{}, err
	}
	return Decision{Voter: voter, Election: election}, nil
}

// CheckRegistration enforces the ledger registration rule alone. It fails
// closed: an unreachable ledger counts as not registered.
func (g *Gate) CheckRegistration(ctx context.Context, voter *vote.Voter) error {
	if g.checker == nil {
		return nil
	}
	if voter.LedgerAddress == "" {
		return newError(KindNotLedgerRegistered, "eligibility", errors.New("no ledger address on file"))
	}
	ok, err := g.checker.IsRegistered(ctx, voter.LedgerAddress)
	if err != nil {
		g.logger.Warn("Ledger registration check failed",
			zap.Int64("voter_id", voter.ID),
			zap.Error(err))
		return newError(KindNotLedgerRegistered, "eligibility", err)
	}
	if !ok {
		return newError(KindNotLedgerRegistered, "eligibility", nil)
	}
	return nil
}

// RegistrationRequired reports whether the ledger registration rule is on.
func (g *Gate) RegistrationRequired() bool { return g.checker != nil }

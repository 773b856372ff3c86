package ballot

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Anonymizer writes the {election, candidate} pair of a ballot to the ledger.
// It is never given the voter.
type Anonymizer struct {
	backend LedgerBackend
	logger  *zap.Logger
}

func NewAnonymizer(backend LedgerBackend, logger *zap.Logger) *Anonymizer {
	return &Anonymizer{backend: backend, logger: logger}
}

// Submit records the ballot content and returns once it is durable.
func (a *Anonymizer) Submit(ctx context.Context, electionID, candidateID int64) (Receipt, error) {
	receipt, err := a.backend.Submit(ctx, EncodeNote(electionID, candidateID))
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = newError(KindSubmissionFailed, "submit ballot", err)
		}
		return Receipt{}, e
	}
	a.logger.Info("Ballot recorded on ledger",
		zap.Int64("election_id", electionID),
		zap.String("txid", receipt.TxID),
		zap.Uint64("round", receipt.ConfirmedRound),
		zap.Bool("simulated", receipt.Simulated))
	return receipt, nil
}

// Lookup reports on an earlier submission.
func (a *Anonymizer) Lookup(ctx context.Context, txid string) (TxState, Receipt, error) {
	return a.backend.Lookup(ctx, txid)
}

func (a *Anonymizer) Simulated() bool { return a.backend.Simulated() }

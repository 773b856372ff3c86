package ballot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedPrefix marks surrogate transaction ids.
const SimulatedPrefix = "sim-"

// Receipt describes a durable ledger write.
type Receipt struct {
	TxID           string
	ConfirmedRound uint64
	Simulated      bool
}

// TxState is what the ledger currently knows about an earlier submission.
type TxState int

const (
	TxUnknown TxState = iota
	TxPending
	TxConfirmed
	TxRejected
)

// LedgerBackend writes notes to the ledger and reports on earlier writes.
// One backend is selected at startup and shared by every request.
type LedgerBackend interface {
	Submit(ctx context.Context, note []byte) (Receipt, error)
	Lookup(ctx context.Context, txid string) (TxState, Receipt, error)
	Simulated() bool
}

// RealBackend submits a zero-amount self-payment per note and waits for it
// to be confirmed.
type RealBackend struct {
	node         ledger.Node
	signer       *ledger.Signer
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewRealBackend(node ledger.Node, signer *ledger.Signer, timeout, pollInterval time.Duration, logger *zap.Logger) *RealBackend {
	return &RealBackend{node: node, signer: signer, timeout: timeout, pollInterval: pollInterval, logger: logger}
}

func (b *RealBackend) Simulated() bool { return false }

func (b *RealBackend) Submit(ctx context.Context, note []byte) (Receipt, error) {
	txid, err := ledger.NoteTransfer(ctx, b.node, b.signer, note)
	if err != nil {
		return Receipt{}, newError(KindSubmissionFailed, "submit note", err)
	}
	b.logger.Debug("Note submitted", zap.String("txid", txid))

	info, err := ledger.WaitForConfirmation(ctx, b.node, txid, b.timeout, b.pollInterval)
	if err != nil {
		var timeout *ledger.TimeoutError
		if errors.As(err, &timeout) {
			e := newError(KindConfirmationTimeout, "confirm note", err)
			e.TxID = txid
			return Receipt{}, e
		}
		return Receipt{}, newError(KindSubmissionFailed, "confirm note", err)
	}
	return Receipt{TxID: txid, ConfirmedRound: info.ConfirmedRound}, nil
}

func (b *RealBackend) Lookup(ctx context.Context, txid string) (TxState, Receipt, error) {
	info, err := b.node.PendingTransactionInfo(ctx, txid)
	if err != nil {
		var apiErr *ledger.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return TxUnknown, Receipt{}, nil
		}
		return TxUnknown, Receipt{}, classifyLedger("lookup transaction", err)
	}
	switch {
	case info.PoolError != "":
		return TxRejected, Receipt{}, nil
	case info.Confirmed():
		return TxConfirmed, Receipt{TxID: txid, ConfirmedRound: info.ConfirmedRound}, nil
	}
	return TxPending, Receipt{}, nil
}

// SimulatedBackend never touches a ledger and hands out surrogate ids.
type SimulatedBackend struct {
	logger *zap.Logger
}

func NewSimulatedBackend(logger *zap.Logger) *SimulatedBackend {
	return &SimulatedBackend{logger: logger}
}

func (b *SimulatedBackend) Simulated() bool { return true }

func (b *SimulatedBackend) Submit(ctx context.Context, note []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, newError(KindSubmissionFailed, "simulate note", err)
	}
	txid := SimulatedPrefix + uuid.NewString()
	b.logger.Info("Simulated ledger write", zap.String("txid", txid), zap.Bool("simulated", true))
	return Receipt{TxID: txid, Simulated: true}, nil
}

func (b *SimulatedBackend) Lookup(context.Context, string) (TxState, Receipt, error) {
	return TxUnknown, Receipt{}, nil
}

// classifyLedger maps a ledger client error onto the vote error taxonomy.
func classifyLedger(op string, err error) *Error {
	switch {
	case ledger.IsProtocol(err):
		return newError(KindLedgerProtocol, op, err)
	default:
		return newError(KindLedgerUnavailable, op, err)
	}
}

// NewLedgerBackend picks the backend for the configured ledger mode.
func NewLedgerBackend(cfg config.Ledger, production bool, node ledger.Node, logger *zap.Logger) (LedgerBackend, error) {
	buildReal := func() (LedgerBackend, error) {
		signer, err := ledger.SignerFromMnemonic(cfg.SenderMnemonic)
		if err != nil {
			return nil, newError(KindConfiguration, "load sender", err)
		}
		logger.Info("Ledger backend ready", zap.String("sender", signer.Address()), zap.Uint64("app_id", cfg.AppID))
		return NewRealBackend(node, signer, cfg.ConfirmTimeout, cfg.ConfirmPoll, logger), nil
	}

	switch cfg.Mode {
	case config.LedgerRequired:
		if !cfg.Complete() || node == nil || !node.Configured() {
			return nil, newError(KindConfiguration, "ledger backend", fmt.Errorf("ledger mode required but ledger configuration is incomplete"))
		}
		return buildReal()
	case config.LedgerOptional:
		if cfg.Complete() && node != nil && node.Configured() {
			return buildReal()
		}
		if production {
			return nil, newError(KindConfiguration, "ledger backend", fmt.Errorf("production requires a complete ledger configuration"))
		}
		logger.Warn("Ledger configuration incomplete, votes will be simulated")
		return NewSimulatedBackend(logger), nil
	case config.LedgerSimulated:
		if production {
			return nil, newError(KindConfiguration, "ledger backend", fmt.Errorf("simulated ledger is not allowed in production"))
		}
		logger.Warn("Ledger simulation enabled")
		return NewSimulatedBackend(logger), nil
	}
	return nil, newError(KindConfiguration, "ledger backend", fmt.Errorf("unknown ledger mode %q", cfg.Mode))
}

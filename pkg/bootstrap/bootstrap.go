// Package bootstrap builds the shared components of the api, the retrier and
// the operator CLI from one Config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/postgres"
	"github.com/cesa-network/cesavote/pkg/db/postgres/election"
	"github.com/cesa-network/cesavote/pkg/db/sqlite"
	"github.com/cesa-network/cesavote/pkg/deploy"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/cesa-network/cesavote/pkg/tally"
	"go.uber.org/zap"
)

// OpenStore connects the configured database and ensures its schema.
func OpenStore(ctx context.Context, logger *zap.Logger, cfg config.Database, component string) (db.Store, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.Open(ctx, logger, cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("%w: POSTGRES_URL is required for DATABASE_TYPE=postgres", config.ErrInvalid)
		}
		return election.New(ctx, logger, cfg.PostgresURL, postgres.GetPoolConfigForComponent(component))
	}
	return nil, fmt.Errorf("%w: unknown DATABASE_TYPE %q", config.ErrInvalid, cfg.Type)
}

// Ledger groups the ledger clients and service accounts. Sender and Creator
// are nil when their mnemonic is not configured.
type Ledger struct {
	Node    *ledger.AlgodClient
	Indexer *ledger.IndexerClient
	Sender  *ledger.Signer
	Creator *ledger.Signer
}

func NewLedger(cfg config.Ledger) (*Ledger, error) {
	l := &Ledger{
		Node: ledger.NewAlgod(ledger.NodeOpts{
			Address:     cfg.AlgodAddress,
			Token:       cfg.AlgodToken,
			ExtraHeader: cfg.AlgodAPIHeader,
			ExtraValue:  cfg.AlgodAPIKey,
			Timeout:     cfg.RequestTimeout,
		}),
		Indexer: ledger.NewIndexer(ledger.IndexerOpts{
			Address: cfg.IndexerAddress,
			Token:   cfg.IndexerToken,
			Timeout: cfg.RequestTimeout,
		}),
	}
	var err error
	if cfg.SenderMnemonic != "" {
		if l.Sender, err = ledger.SignerFromMnemonic(cfg.SenderMnemonic); err != nil {
			return nil, fmt.Errorf("%w: ALGORAND_SENDER_MNEMONIC: %v", config.ErrInvalid, err)
		}
	}
	if cfg.CreatorMnemonic != "" {
		if l.Creator, err = ledger.SignerFromMnemonic(cfg.CreatorMnemonic); err != nil {
			return nil, fmt.Errorf("%w: ALGORAND_CREATOR_MNEMONIC: %v", config.ErrInvalid, err)
		}
	}
	return l, nil
}

// SenderAddress is the account ballots are written from, or "".
func (l *Ledger) SenderAddress() string {
	if l.Sender == nil {
		return ""
	}
	return l.Sender.Address()
}

// Deployer returns a deployer that signs with the creator account, falling
// back to the sender.
func (l *Ledger) Deployer(cfg config.Ledger, logger *zap.Logger) *deploy.Deployer {
	creator := l.Creator
	if creator == nil {
		creator = l.Sender
	}
	return deploy.New(l.Node, creator, deploy.Options{
		ConfirmTimeout: cfg.ConfirmTimeout,
		ConfirmPoll:    cfg.ConfirmPoll,
		AppID:          cfg.AppID,
		Logger:         logger.With(zap.String("component", "deployer")),
	})
}

// Voting is the ballot pipeline with its tally.
type Voting struct {
	Service    *ballot.Service
	Reconciler *tally.Reconciler
	Indexer    *tally.IndexerSource
	Simulated  bool
}

// NewVoting wires the gate, the ledger backend chosen by LEDGER_MODE and the
// reconciler. notifier may be nil.
func NewVoting(cfg config.Config, store db.Store, l *Ledger, notifier ballot.Notifier, logger *zap.Logger) (*Voting, error) {
	checker, err := ballot.NewRegistrationChecker(cfg, l.Node, logger)
	if err != nil {
		return nil, err
	}
	backend, err := ballot.NewLedgerBackend(cfg.Ledger, cfg.Production(), l.Node, logger)
	if err != nil {
		return nil, err
	}

	indexerSource := tally.NewIndexerSource(l.Indexer, l.SenderAddress(), cfg.Ledger.ScanLimit, cfg.Ledger.CacheTTL,
		logger.With(zap.String("source", "indexer")))
	reconciler := tally.NewReconciler(store, logger,
		indexerSource,
		tally.NewMirrorSource(store, logger),
		tally.NewRawSource(store, store, logger),
	)

	svc := ballot.NewService(ballot.Options{
		Store:    store,
		Gate:     ballot.NewGate(store, checker, nil, logger),
		Anon:     ballot.NewAnonymizer(backend, logger),
		Counter:  reconciler,
		Notifier: notifier,
		Logger:   logger,
	})
	return &Voting{Service: svc, Reconciler: reconciler, Indexer: indexerSource, Simulated: backend.Simulated()}, nil
}

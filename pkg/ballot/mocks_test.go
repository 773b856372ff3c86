package ballot

import (
	"context"

	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
	notes [][]byte
}

func (m *mockBackend) Submit(ctx context.Context, note []byte) (Receipt, error) {
	m.notes = append(m.notes, note)
	args := m.Called(ctx, note)
	return args.Get(0).(Receipt), args.Error(1)
}

func (m *mockBackend) Lookup(ctx context.Context, txid string) (TxState, Receipt, error) {
	args := m.Called(ctx, txid)
	return args.Get(0).(TxState), args.Get(1).(Receipt), args.Error(2)
}

func (m *mockBackend) Simulated() bool { return false }

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) IsRegistered(ctx context.Context, address string) (bool, error) {
	args := m.Called(ctx, address)
	return args.Bool(0), args.Error(1)
}

type mockNode struct {
	mock.Mock
}

func (m *mockNode) Configured() bool { return true }

func (m *mockNode) Status(ctx context.Context) (ledger.NodeStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(ledger.NodeStatus), args.Error(1)
}

func (m *mockNode) SuggestedParams(ctx context.Context) (ledger.TxParams, error) {
	args := m.Called(ctx)
	return args.Get(0).(ledger.TxParams), args.Error(1)
}

func (m *mockNode) SubmitRaw(ctx context.Context, signed []byte) (string, error) {
	args := m.Called(ctx, signed)
	return args.String(0), args.Error(1)
}

func (m *mockNode) PendingTransactionInfo(ctx context.Context, txid string) (ledger.PendingTx, error) {
	args := m.Called(ctx, txid)
	return args.Get(0).(ledger.PendingTx), args.Error(1)
}

func (m *mockNode) AccountInfo(ctx context.Context, address string) (ledger.AccountInfo, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(ledger.AccountInfo), args.Error(1)
}

func (m *mockNode) Compile(ctx context.Context, source string) (ledger.Program, error) {
	args := m.Called(ctx, source)
	return args.Get(0).(ledger.Program), args.Error(1)
}

// storeCounter counts from the mirror only, enough to observe the flow.
type storeCounter struct {
	counts func(ctx context.Context, electionID int64) (map[int64]int64, error)
}

func (c storeCounter) CountsForElection(ctx context.Context, electionID int64) map[int64]int64 {
	m, _ := c.counts(ctx, electionID)
	return m
}

func (c storeCounter) TotalVotes(ctx context.Context, electionID int64) int64 {
	m, _ := c.counts(ctx, electionID)
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}

var testParams = ledger.TxParams{
	ConsensusVersion: "future",
	GenesisHash:      make([]byte, 32),
	GenesisID:        "testnet-v1.0",
	LastRound:        10,
	MinFee:           1000,
}

func ledgerAccount(addr string, optedIn ...uint64) ledger.AccountInfo {
	info := ledger.AccountInfo{Address: addr, Amount: 1_000_000}
	for _, id := range optedIn {
		info.AppsLocalState = append(info.AppsLocalState, ledger.AppLocalState{ID: id})
	}
	return info
}

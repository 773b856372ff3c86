package ballot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRealBackendConfirms(t *testing.T) {
	node := &mockNode{}
	node.On("SuggestedParams", mock.Anything).Return(testParams, nil)
	node.On("SubmitRaw", mock.Anything, mock.Anything).Return("TX1", nil)
	node.On("PendingTransactionInfo", mock.Anything, "TX1").Return(ledger.PendingTx{}, nil).Once()
	node.On("PendingTransactionInfo", mock.Anything, "TX1").Return(ledger.PendingTx{ConfirmedRound: 12}, nil)

	b := NewRealBackend(node, ledger.GenerateSigner(), time.Second, 5*time.Millisecond, zaptest.NewLogger(t))
	r, err := b.Submit(context.Background(), EncodeNote(1, 2))
	require.NoError(t, err)
	assert.Equal(t, Receipt{TxID: "TX1", ConfirmedRound: 12}, r)
	assert.False(t, b.Simulated())
}

func TestRealBackendTimeoutKeepsTxID(t *testing.T) {
	node := &mockNode{}
	node.On("SuggestedParams", mock.Anything).Return(testParams, nil)
	node.On("SubmitRaw", mock.Anything, mock.Anything).Return("TX1", nil)
	node.On("PendingTransactionInfo", mock.Anything, "TX1").Return(ledger.PendingTx{}, nil)

	b := NewRealBackend(node, ledger.GenerateSigner(), 20*time.Millisecond, 5*time.Millisecond, zaptest.NewLogger(t))
	_, err := b.Submit(context.Background(), EncodeNote(1, 2))
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "TX1", e.TxID)
}

func TestRealBackendSubmitFailure(t *testing.T) {
	node := &mockNode{}
	node.On("SuggestedParams", mock.Anything).Return(ledger.TxParams{}, ledger.ErrUnavailable)

	b := NewRealBackend(node, ledger.GenerateSigner(), time.Second, time.Millisecond, zaptest.NewLogger(t))
	_, err := b.Submit(context.Background(), EncodeNote(1, 2))
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestRealBackendPoolError(t *testing.T) {
	node := &mockNode{}
	node.On("SuggestedParams", mock.Anything).Return(testParams, nil)
	node.On("SubmitRaw", mock.Anything, mock.Anything).Return("TX1", nil)
	node.On("PendingTransactionInfo", mock.Anything, "TX1").Return(ledger.PendingTx{PoolError: "overspend"}, nil)

	b := NewRealBackend(node, ledger.GenerateSigner(), time.Second, time.Millisecond, zaptest.NewLogger(t))
	_, err := b.Submit(context.Background(), EncodeNote(1, 2))
	assert.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestRealBackendLookup(t *testing.T) {
	ctx := context.Background()
	node := &mockNode{}
	node.On("PendingTransactionInfo", mock.Anything, "DONE").Return(ledger.PendingTx{ConfirmedRound: 3}, nil)
	node.On("PendingTransactionInfo", mock.Anything, "WAIT").Return(ledger.PendingTx{}, nil)
	node.On("PendingTransactionInfo", mock.Anything, "GONE").Return(ledger.PendingTx{}, &ledger.APIError{Status: 404})
	node.On("PendingTransactionInfo", mock.Anything, "DROP").Return(ledger.PendingTx{PoolError: "fee too small"}, nil)
	node.On("PendingTransactionInfo", mock.Anything, "DOWN").Return(ledger.PendingTx{}, ledger.ErrUnavailable)

	b := NewRealBackend(node, ledger.GenerateSigner(), time.Second, time.Millisecond, zaptest.NewLogger(t))
	state, r, err := b.Lookup(ctx, "DONE")
	require.NoError(t, err)
	assert.Equal(t, TxConfirmed, state)
	assert.EqualValues(t, 3, r.ConfirmedRound)

	state, _, _ = b.Lookup(ctx, "WAIT")
	assert.Equal(t, TxPending, state)
	state, _, _ = b.Lookup(ctx, "GONE")
	assert.Equal(t, TxUnknown, state)
	state, _, _ = b.Lookup(ctx, "DROP")
	assert.Equal(t, TxRejected, state)
	_, _, err = b.Lookup(ctx, "DOWN")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestSimulatedBackend(t *testing.T) {
	b := NewSimulatedBackend(zaptest.NewLogger(t))
	r1, err := b.Submit(context.Background(), EncodeNote(1, 2))
	require.NoError(t, err)
	r2, err := b.Submit(context.Background(), EncodeNote(1, 2))
	require.NoError(t, err)

	assert.True(t, r1.Simulated)
	assert.True(t, strings.HasPrefix(r1.TxID, SimulatedPrefix))
	assert.NotEqual(t, r1.TxID, r2.TxID)
}

func TestNewLedgerBackendModes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	phrase, err := ledger.GenerateSigner().Mnemonic()
	require.NoError(t, err)
	complete := config.Ledger{AlgodAddress: "http://node", AppID: 9, SenderMnemonic: phrase, ConfirmTimeout: time.Second, ConfirmPoll: time.Millisecond}
	node := &mockNode{}
	unconfigured := ledger.NewAlgod(ledger.NodeOpts{})

	cases := []struct {
		name       string
		cfg        config.Ledger
		production bool
		node       ledger.Node
		simulated  bool
		wantErr    bool
	}{
		{"required complete", withMode(complete, config.LedgerRequired), true, node, false, false},
		{"required incomplete", withMode(config.Ledger{}, config.LedgerRequired), false, unconfigured, false, true},
		{"optional complete", withMode(complete, config.LedgerOptional), false, node, false, false},
		{"optional incomplete falls back", withMode(config.Ledger{}, config.LedgerOptional), false, unconfigured, true, false},
		{"optional incomplete in production", withMode(config.Ledger{}, config.LedgerOptional), true, unconfigured, false, true},
		{"simulated", withMode(complete, config.LedgerSimulated), false, node, true, false},
		{"simulated in production", withMode(complete, config.LedgerSimulated), true, node, false, true},
		{"bad mnemonic", withMode(config.Ledger{AlgodAddress: "x", AppID: 1, SenderMnemonic: "a b c"}, config.LedgerRequired), false, node, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewLedgerBackend(tc.cfg, tc.production, tc.node, logger)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.simulated, b.Simulated())
		})
	}
}

func withMode(l config.Ledger, m config.LedgerMode) config.Ledger {
	l.Mode = m
	return l
}

func TestAnonymizerWrapsPlainErrors(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Submit", mock.Anything, mock.Anything).Return(Receipt{}, errors.New("boom"))

	_, err := NewAnonymizer(backend, zaptest.NewLogger(t)).Submit(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	require.Len(t, backend.notes, 1)
	assert.JSONEq(t, `{"election_id":1,"candidate_id":2}`, string(backend.notes[0]))
}

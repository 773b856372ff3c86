package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlgod struct {
	confirmAfter int32
	polls        atomic.Int32
	poolError    string
	submitted    atomic.Int32
	token        string
}

func (f *fakeAlgod) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	check := func(r *http.Request) {
		if f.token != "" {
			assert.Equal(t, f.token, r.Header.Get(algodTokenHeader))
		}
	}
	mux.HandleFunc("/v2/transactions/params", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"consensus-version": "future",
			"fee":               0,
			"genesis-hash":      base64.StdEncoding.EncodeToString(make([]byte, 32)),
			"genesis-id":        "testnet-v1.0",
			"last-round":        100,
			"min-fee":           1000,
		})
	})
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		assert.Equal(t, "application/x-binary", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body)
		f.submitted.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"txId": "TX1"})
	})
	mux.HandleFunc("/v2/transactions/pending/TX1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		out := map[string]any{"pool-error": f.poolError}
		if f.confirmAfter > 0 && n >= f.confirmAfter {
			out["confirmed-round"] = 101
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/v2/accounts/ADDR", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"address": "ADDR",
			"amount":  5000,
			"apps-local-state": []map[string]any{{
				"id": 42,
				"key-value": []map[string]any{
					{"key": base64.StdEncoding.EncodeToString([]byte("Voted")), "value": map[string]any{"type": 2, "uint": 1}},
					{"key": base64.StdEncoding.EncodeToString([]byte("CandidateID")), "value": map[string]any{"type": 2, "uint": 7}},
				},
			}},
		})
	})
	mux.HandleFunc("/v2/teal/compile", func(w http.ResponseWriter, r *http.Request) {
		src, _ := io.ReadAll(r.Body)
		if string(src) == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"1: unknown opcode"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"hash": "HASH", "result": base64.StdEncoding.EncodeToString([]byte{0x06, 0x81, 0x01})})
	})
	return mux
}

func newNode(t *testing.T, f *fakeAlgod) *AlgodClient {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewAlgod(NodeOpts{Address: srv.URL, Token: f.token})
}

func TestNoteTransferSignsAndSubmits(t *testing.T) {
	f := &fakeAlgod{token: "secret"}
	node := newNode(t, f)

	txid, err := NoteTransfer(context.Background(), node, GenerateSigner(), []byte(`{"election_id":1,"candidate_id":2}`))
	require.NoError(t, err)
	assert.Equal(t, "TX1", txid)
	assert.EqualValues(t, 1, f.submitted.Load())
}

func TestWaitForConfirmation(t *testing.T) {
	f := &fakeAlgod{confirmAfter: 3}
	node := newNode(t, f)

	info, err := WaitForConfirmation(context.Background(), node, "TX1", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 101, info.ConfirmedRound)
	assert.GreaterOrEqual(t, f.polls.Load(), int32(3))
}

func TestWaitForConfirmationTimeout(t *testing.T) {
	node := newNode(t, &fakeAlgod{})

	_, err := WaitForConfirmation(context.Background(), node, "TX1", 30*time.Millisecond, 5*time.Millisecond)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "TX1", timeout.TxID)
}

func TestWaitForConfirmationPoolError(t *testing.T) {
	node := newNode(t, &fakeAlgod{poolError: "overspend"})

	_, err := WaitForConfirmation(context.Background(), node, "TX1", time.Second, 5*time.Millisecond)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "overspend", rejected.Reason)
}

func TestAccountInfoLocalState(t *testing.T) {
	node := newNode(t, &fakeAlgod{})

	info, err := node.AccountInfo(context.Background(), "ADDR")
	require.NoError(t, err)
	assert.True(t, info.OptedIn(42))
	assert.False(t, info.OptedIn(43))

	state, ok := info.LocalState(42)
	require.True(t, ok)
	voted, ok := state.Uint("Voted")
	assert.True(t, ok)
	assert.EqualValues(t, 1, voted)
	cand, _ := state.Uint("CandidateID")
	assert.EqualValues(t, 7, cand)
}

func TestCompile(t *testing.T) {
	node := newNode(t, &fakeAlgod{})

	prog, err := node.Compile(context.Background(), "#pragma version 6\nint 1")
	require.NoError(t, err)
	assert.Equal(t, "HASH", prog.Hash)
	assert.Equal(t, []byte{0x06, 0x81, 0x01}, prog.Bytecode)

	_, err = node.Compile(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, IsProtocol(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "1: unknown opcode", apiErr.Message)
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	node := NewAlgod(NodeOpts{Address: srv.URL})
	for i := 0; i < 5; i++ {
		_, err := node.Status(context.Background())
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
		assert.Equal(t, "unavailable", Classify(err))
	}
	// three failures open the breaker; later calls never reach the server
	assert.EqualValues(t, 3, hits.Load())
}

func TestFailoverToSecondEndpoint(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"last-round":9}`))
	}))
	defer up.Close()

	node := NewAlgod(NodeOpts{Address: down.URL + "," + up.URL})
	st, err := node.Status(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 9, st.LastRound)
}

func TestUnconfiguredClient(t *testing.T) {
	node := NewAlgod(NodeOpts{})
	assert.False(t, node.Configured())
	_, err := node.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, IsUnavailable(err))
}

func TestMalformedBodyIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewAlgod(NodeOpts{Address: srv.URL}).Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, "protocol", Classify(err))
}

func TestIndexerPaging(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, indexerSearchPath, r.URL.Path)
		assert.Equal(t, "idx", r.Header.Get(indexerTokenHeader))
		assert.Equal(t, "SENDER", r.URL.Query().Get("address"))
		n := calls.Add(1)
		page := searchPage{}
		switch n {
		case 1:
			assert.Empty(t, r.URL.Query().Get("next"))
			page.Transactions = []IndexedTx{{ID: "a", Note: []byte("x")}, {ID: "b"}}
			page.NextToken = "p2"
		default:
			assert.Equal(t, "p2", r.URL.Query().Get("next"))
			page.Transactions = []IndexedTx{{ID: "c"}}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	idx := NewIndexer(IndexerOpts{Address: srv.URL, Token: "idx"})
	txs, err := idx.SearchTransactions(context.Background(), SearchQuery{Address: "SENDER", Limit: 10})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []byte("x"), txs[0].Note)
	assert.EqualValues(t, 2, calls.Load())
}

func TestIndexerLimitStopsPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(searchPage{Transactions: []IndexedTx{{ID: "a"}, {ID: "b"}}, NextToken: "more"})
	}))
	defer srv.Close()

	txs, err := NewIndexer(IndexerOpts{Address: srv.URL}).SearchTransactions(context.Background(), SearchQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestValidateAddress(t *testing.T) {
	s := GenerateSigner()
	require.NoError(t, ValidateAddress(s.Address()))
	require.Error(t, ValidateAddress("NOT-AN-ADDRESS"))

	phrase, err := s.Mnemonic()
	require.NoError(t, err)
	again, err := SignerFromMnemonic(phrase)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), again.Address())
}

package ledger

import (
	"encoding/base64"
)

// NodeStatus is the subset of /v2/status the service reads.
type NodeStatus struct {
	LastRound uint64 `json:"last-round"`
}

// TxParams mirrors /v2/transactions/params.
type TxParams struct {
	ConsensusVersion string `json:"consensus-version"`
	Fee              uint64 `json:"fee"`
	GenesisHash      []byte `json:"genesis-hash"`
	GenesisID        string `json:"genesis-id"`
	LastRound        uint64 `json:"last-round"`
	MinFee           uint64 `json:"min-fee"`
}

// PendingTx mirrors /v2/transactions/pending/{txid}.
type PendingTx struct {
	ConfirmedRound   uint64 `json:"confirmed-round"`
	PoolError        string `json:"pool-error"`
	ApplicationIndex uint64 `json:"application-index"`
}

// Confirmed reports whether the transaction made it into a block.
func (p PendingTx) Confirmed() bool { return p.ConfirmedRound > 0 }

// TealValue is a local or global state value. Type 1 is bytes, 2 is uint.
type TealValue struct {
	Type  uint64 `json:"type"`
	Bytes string `json:"bytes"`
	Uint  uint64 `json:"uint"`
}

// KeyValue is one state entry; Key is base64 encoded on the wire.
type KeyValue struct {
	Key   string    `json:"key"`
	Value TealValue `json:"value"`
}

// AppLocalState is the opt-in record of an account for one application.
type AppLocalState struct {
	ID       uint64     `json:"id"`
	KeyValue []KeyValue `json:"key-value"`
}

// Uint returns the uint value stored under the plain-text key.
func (s AppLocalState) Uint(key string) (uint64, bool) {
	enc := base64.StdEncoding.EncodeToString([]byte(key))
	for _, kv := range s.KeyValue {
		if kv.Key == enc && kv.Value.Type == 2 {
			return kv.Value.Uint, true
		}
	}
	return 0, false
}

// AccountInfo mirrors the fields of /v2/accounts/{address} used here.
type AccountInfo struct {
	Address        string          `json:"address"`
	Amount         uint64          `json:"amount"`
	AppsLocalState []AppLocalState `json:"apps-local-state"`
}

// LocalState returns the account's local state for appID, if opted in.
func (a AccountInfo) LocalState(appID uint64) (AppLocalState, bool) {
	for _, s := range a.AppsLocalState {
		if s.ID == appID {
			return s, true
		}
	}
	return AppLocalState{}, false
}

// OptedIn reports whether the account holds local state for appID.
func (a AccountInfo) OptedIn(appID uint64) bool {
	_, ok := a.LocalState(appID)
	return ok
}

// Program is a compiled TEAL program.
type Program struct {
	Hash     string
	Bytecode []byte
}

// IndexedTx is one transaction returned by an indexer search.
type IndexedTx struct {
	ID             string `json:"id"`
	Note           []byte `json:"note"`
	ConfirmedRound uint64 `json:"confirmed-round"`
	Sender         string `json:"sender"`
	RoundTime      int64  `json:"round-time"`
}

// SearchQuery narrows an indexer transaction search.
type SearchQuery struct {
	// Address limits results to transactions sent by this account.
	Address string
	// TxType is an indexer tx-type such as "pay" or "appl".
	TxType string
	// Limit caps the total number of transactions returned across pages.
	Limit int
}

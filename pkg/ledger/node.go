package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Node captures the algod calls used for submission, confirmation,
// registration checks and contract deployment.
type Node interface {
	Status(ctx context.Context) (NodeStatus, error)
	SuggestedParams(ctx context.Context) (TxParams, error)
	SubmitRaw(ctx context.Context, signed []byte) (string, error)
	PendingTransactionInfo(ctx context.Context, txid string) (PendingTx, error)
	AccountInfo(ctx context.Context, address string) (AccountInfo, error)
	Compile(ctx context.Context, source string) (Program, error)
	Configured() bool
}

// AlgodClient implements Node over the algod v2 REST API.
type AlgodClient struct {
	http *HTTPClient
}

// NodeOpts configures an AlgodClient.
type NodeOpts struct {
	Address string
	Token   string
	// ExtraHeader and ExtraValue support hosted providers that expect an
	// API key header instead of X-Algo-API-Token.
	ExtraHeader string
	ExtraValue  string
	Timeout     time.Duration
}

// NewAlgod builds a node client. An empty address yields an unconfigured
// client whose calls fail with ErrNotConfigured.
func NewAlgod(o NodeOpts) *AlgodClient {
	var endpoints []string
	for _, ep := range strings.Split(o.Address, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	headers := map[string]string{algodTokenHeader: o.Token}
	if o.ExtraHeader != "" {
		headers[o.ExtraHeader] = o.ExtraValue
	}
	return &AlgodClient{http: NewHTTPWithOpts(Opts{
		Endpoints: endpoints,
		Headers:   headers,
		Timeout:   o.Timeout,
	})}
}

func (a *AlgodClient) Configured() bool { return a != nil && a.http.Configured() }

func (a *AlgodClient) Status(ctx context.Context) (NodeStatus, error) {
	var out NodeStatus
	err := a.http.getJSON(ctx, statusPath, nil, &out)
	return out, err
}

func (a *AlgodClient) SuggestedParams(ctx context.Context) (TxParams, error) {
	var out TxParams
	if err := a.http.getJSON(ctx, paramsPath, nil, &out); err != nil {
		return TxParams{}, err
	}
	if out.GenesisID == "" || len(out.GenesisHash) == 0 {
		return TxParams{}, protocol("transaction params missing genesis")
	}
	return out, nil
}

func (a *AlgodClient) SubmitRaw(ctx context.Context, signed []byte) (string, error) {
	var out struct {
		TxID string `json:"txId"`
	}
	if err := a.http.do(ctx, "POST", submitPath, nil, "application/x-binary", signed, &out); err != nil {
		return "", err
	}
	if out.TxID == "" {
		return "", protocol("submit returned empty txId")
	}
	return out.TxID, nil
}

func (a *AlgodClient) PendingTransactionInfo(ctx context.Context, txid string) (PendingTx, error) {
	var out PendingTx
	err := a.http.getJSON(ctx, fmt.Sprintf(pendingPathFmt, url.PathEscape(txid)), nil, &out)
	return out, err
}

func (a *AlgodClient) AccountInfo(ctx context.Context, address string) (AccountInfo, error) {
	var out AccountInfo
	err := a.http.getJSON(ctx, fmt.Sprintf(accountPathFmt, url.PathEscape(address)), nil, &out)
	return out, err
}

func (a *AlgodClient) Compile(ctx context.Context, source string) (Program, error) {
	var out struct {
		Hash   string `json:"hash"`
		Result string `json:"result"`
	}
	if err := a.http.do(ctx, "POST", compilePath, nil, "text/plain", []byte(source), &out); err != nil {
		return Program{}, err
	}
	bytecode, err := base64.StdEncoding.DecodeString(out.Result)
	if err != nil || len(bytecode) == 0 {
		return Program{}, protocol("compile result is not base64 bytecode")
	}
	return Program{Hash: out.Hash, Bytecode: bytecode}, nil
}

// WaitForConfirmation polls the pending pool every interval until txid is
// confirmed, rejected, or timeout elapses. A poll that fails is retried on the
// next tick; the last poll error is returned if the deadline passes.
func WaitForConfirmation(ctx context.Context, node Node, txid string, timeout, interval time.Duration) (PendingTx, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		info, err := node.PendingTransactionInfo(ctx, txid)
		switch {
		case err != nil:
			lastErr = err
		case info.PoolError != "":
			return info, &RejectedError{TxID: txid, Reason: info.PoolError}
		case info.Confirmed():
			return info, nil
		}

		select {
		case <-ctx.Done():
			return PendingTx{}, &TimeoutError{TxID: txid, After: timeout, Last: lastErr}
		case <-ticker.C:
		}
	}
}

// RejectedError means the node dropped the transaction from its pool.
type RejectedError struct {
	TxID   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction %s rejected: %s", e.TxID, e.Reason)
}

// TimeoutError means the transaction was not confirmed in time. It may still
// confirm later.
type TimeoutError struct {
	TxID  string
	After time.Duration
	Last  error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("transaction %s not confirmed after %s (last poll: %v)", e.TxID, e.After, e.Last)
	}
	return fmt.Sprintf("transaction %s not confirmed after %s", e.TxID, e.After)
}

// Package deploy creates and drives the on-ledger voting application.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"go.uber.org/zap"
)

// State is the deployer lifecycle.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateIdle         State = "idle"
	StateCompiling    State = "compiling"
	StateSubmitted    State = "submitted"
	StateConfirmed    State = "confirmed"
	StateFailed       State = "failed"
)

var (
	globalSchema = types.StateSchema{NumUint: 5, NumByteSlice: 1}
	localSchema  = types.StateSchema{NumUint: 2}
)

const (
	localVoted     = "Voted"
	localCandidate = "CandidateID"
	voteMethod     = "vote"
)

// Snapshot is an observable copy of the deployer state.
type Snapshot struct {
	State        State  `json:"state"`
	AppID        uint64 `json:"app_id,omitempty"`
	TxID         string `json:"txid,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ApprovalHash string `json:"approval_hash,omitempty"`
	ClearHash    string `json:"clear_hash,omitempty"`
}

// Request describes an application to create.
type Request struct {
	ApprovalSource string
	ClearSource    string
	Windows        Windows
}

type Options struct {
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
	// AppID is the already deployed application, if any.
	AppID  uint64
	Logger *zap.Logger
}

// Deployer compiles and creates the voting application and runs the
// per-voter helper calls against it. Create calls are serialized.
type Deployer struct {
	node    ledger.Node
	creator *ledger.Signer
	timeout time.Duration
	poll    time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	snap Snapshot
}

// New returns a deployer. It starts Unconfigured when node or creator is
// missing, and Confirmed when opts.AppID is already known.
func New(node ledger.Node, creator *ledger.Signer, opts Options) *Deployer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 10 * time.Second
	}
	d := &Deployer{
		node:    node,
		creator: creator,
		timeout: opts.ConfirmTimeout,
		poll:    opts.ConfirmPoll,
		logger:  opts.Logger,
	}
	switch {
	case node == nil || !node.Configured() || creator == nil:
		d.snap = Snapshot{State: StateUnconfigured}
	case opts.AppID != 0:
		d.snap = Snapshot{State: StateConfirmed, AppID: opts.AppID}
	default:
		d.snap = Snapshot{State: StateIdle}
	}
	return d
}

func (d *Deployer) State() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

func (d *Deployer) set(s Snapshot) {
	d.mu.Lock()
	d.snap = s
	d.mu.Unlock()
}

func (d *Deployer) fail(s Snapshot, err error) (uint64, error) {
	s.State = StateFailed
	s.Reason = err.Error()
	d.set(s)
	d.logger.Error("Contract deployment failed", zap.String("txid", s.TxID), zap.Error(err))
	return 0, err
}

// Deploy compiles both programs, creates the application and waits for it to
// be confirmed. It returns the new application id.
func (d *Deployer) Deploy(ctx context.Context, req Request) (uint64, error) {
	if d.State().State == StateUnconfigured {
		return 0, fmt.Errorf("deploy: %w", ledger.ErrNotConfigured)
	}
	if err := req.Windows.Validate(); err != nil {
		return 0, err
	}
	if req.ApprovalSource == "" || req.ClearSource == "" {
		return 0, errors.New("deploy: approval and clear programs are required")
	}

	d.mu.Lock()
	if d.snap.State == StateCompiling || d.snap.State == StateSubmitted {
		d.mu.Unlock()
		return 0, errors.New("deploy: another deployment is in progress")
	}
	d.snap = Snapshot{State: StateCompiling}
	d.mu.Unlock()

	snap := Snapshot{State: StateCompiling}
	approval, err := d.node.Compile(ctx, req.ApprovalSource)
	if err != nil {
		return d.fail(snap, fmt.Errorf("compile approval program: %w", err))
	}
	clearProg, err := d.node.Compile(ctx, req.ClearSource)
	if err != nil {
		return d.fail(snap, fmt.Errorf("compile clear program: %w", err))
	}
	snap.ApprovalHash, snap.ClearHash = approval.Hash, clearProg.Hash
	d.set(snap)

	params, err := d.node.SuggestedParams(ctx)
	if err != nil {
		return d.fail(snap, err)
	}
	tx, err := transaction.MakeApplicationCreateTx(
		false, approval.Bytecode, clearProg.Bytecode,
		globalSchema, localSchema, req.Windows.Args(),
		nil, nil, nil,
		ledger.ToSDKParams(params), d.creator.SDKAddress(),
		nil, types.Digest{}, [32]byte{}, types.Address{},
	)
	if err != nil {
		return d.fail(snap, fmt.Errorf("build application create: %w", err))
	}
	txid, err := ledger.SignAndSubmit(ctx, d.node, d.creator, tx)
	if err != nil {
		return d.fail(snap, err)
	}
	snap.State, snap.TxID = StateSubmitted, txid
	d.set(snap)
	d.logger.Info("Application create submitted",
		zap.String("txid", txid),
		zap.String("approval_hash", approval.Hash))

	info, err := ledger.WaitForConfirmation(ctx, d.node, txid, d.timeout, d.poll)
	if err != nil {
		return d.fail(snap, err)
	}
	if info.ApplicationIndex == 0 {
		return d.fail(snap, errors.New("confirmed transaction carries no application index"))
	}

	snap.State, snap.AppID = StateConfirmed, info.ApplicationIndex
	d.set(snap)
	d.logger.Info("Application deployed",
		zap.Uint64("app_id", info.ApplicationIndex),
		zap.Uint64("round", info.ConfirmedRound))
	return info.ApplicationIndex, nil
}

// AppID returns the confirmed application id, or 0.
func (d *Deployer) AppID() uint64 {
	s := d.State()
	if s.State != StateConfirmed {
		return 0
	}
	return s.AppID
}

func (d *Deployer) call(ctx context.Context, voter *ledger.Signer, build func(types.SuggestedParams) (types.Transaction, error)) (string, error) {
	if d.node == nil || !d.node.Configured() {
		return "", ledger.ErrNotConfigured
	}
	params, err := d.node.SuggestedParams(ctx)
	if err != nil {
		return "", err
	}
	tx, err := build(ledger.ToSDKParams(params))
	if err != nil {
		return "", fmt.Errorf("build application call: %w", err)
	}
	txid, err := ledger.SignAndSubmit(ctx, d.node, voter, tx)
	if err != nil {
		return "", err
	}
	if _, err := ledger.WaitForConfirmation(ctx, d.node, txid, d.timeout, d.poll); err != nil {
		return txid, err
	}
	return txid, nil
}

// OptIn registers voter with the application.
func (d *Deployer) OptIn(ctx context.Context, voter *ledger.Signer, appID uint64) (string, error) {
	return d.call(ctx, voter, func(sp types.SuggestedParams) (types.Transaction, error) {
		return transaction.MakeApplicationOptInTx(appID, nil, nil, nil, nil, sp,
			voter.SDKAddress(), nil, types.Digest{}, [32]byte{}, types.Address{})
	})
}

// SimulateVote casts a vote directly against the application, bypassing the
// anonymized note path. It is an operator tool for testing a deployment.
func (d *Deployer) SimulateVote(ctx context.Context, voter *ledger.Signer, appID, candidateID uint64) (string, error) {
	args := [][]byte{[]byte(voteMethod), uint64Arg(candidateID)}
	return d.call(ctx, voter, func(sp types.SuggestedParams) (types.Transaction, error) {
		return transaction.MakeApplicationNoOpTx(appID, args, nil, nil, nil, sp,
			voter.SDKAddress(), nil, types.Digest{}, [32]byte{}, types.Address{})
	})
}

// VoterState is what the application stores for one voter.
type VoterState struct {
	Address     string `json:"address"`
	OptedIn     bool   `json:"opted_in"`
	Voted       bool   `json:"voted"`
	CandidateID uint64 `json:"candidate_id,omitempty"`
}

func (d *Deployer) VoterStatus(ctx context.Context, address string, appID uint64) (VoterState, error) {
	if err := ledger.ValidateAddress(address); err != nil {
		return VoterState{}, err
	}
	if d.node == nil || !d.node.Configured() {
		return VoterState{}, ledger.ErrNotConfigured
	}
	info, err := d.node.AccountInfo(ctx, address)
	if err != nil {
		return VoterState{}, err
	}
	out := VoterState{Address: address}
	local, ok := info.LocalState(appID)
	if !ok {
		return out, nil
	}
	out.OptedIn = true
	voted, _ := local.Uint(localVoted)
	out.Voted = voted == 1
	out.CandidateID, _ = local.Uint(localCandidate)
	return out, nil
}

// Report summarises the node and the service account.
type Report struct {
	LastRound     uint64 `json:"last_round"`
	AppID         uint64 `json:"app_id"`
	Sender        string `json:"sender,omitempty"`
	SenderBalance uint64 `json:"sender_balance"`
	Deployer      State  `json:"deployer"`
}

// Status reads the node round and the balance of sender, which may be nil.
func (d *Deployer) Status(ctx context.Context, sender *ledger.Signer) (Report, error) {
	if d.node == nil || !d.node.Configured() {
		return Report{Deployer: StateUnconfigured}, ledger.ErrNotConfigured
	}
	snap := d.State()
	r := Report{AppID: snap.AppID, Deployer: snap.State}
	st, err := d.node.Status(ctx)
	if err != nil {
		return r, err
	}
	r.LastRound = st.LastRound
	if sender == nil {
		sender = d.creator
	}
	if sender != nil {
		r.Sender = sender.Address()
		acct, err := d.node.AccountInfo(ctx, r.Sender)
		if err != nil {
			return r, err
		}
		r.SenderBalance = acct.Amount
	}
	return r, nil
}

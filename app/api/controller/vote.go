package controller

import (
	"net/http"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"go.uber.org/zap"
)

// VoteRequest is the body of POST /api/vote.
type VoteRequest struct {
	CandidateID int64  `json:"candidate_id"`
	ElectionID  *int64 `json:"election_id,omitempty"`
}

type voteResponse struct {
	Status         string  `json:"status"`
	VoteID         int64   `json:"vote_id"`
	ElectionID     int64   `json:"election_id"`
	CandidateVotes int64   `json:"candidate_votes"`
	TotalVotes     int64   `json:"total_votes"`
	TxID           *string `json:"txid"`
	Simulated      bool    `json:"simulated,omitempty"`
	// Pending is set when the ballot is stored but not yet on the ledger.
	Pending     bool   `json:"pending,omitempty"`
	LedgerError string `json:"ledger_error,omitempty"`
}

// newVoteResponse keeps status "ok" for every accepted ballot; a missing
// ledger write shows up as a null txid and the pending flag.
func newVoteResponse(res ballot.Result) voteResponse {
	out := newVoteResponse(res)
	if out.Pending {
		c.App.Logger.Warn("Vote accepted without ledger confirmation",
			zap.Int64("vote_id", res.VoteID),
			zap.String("kind", string(res.LedgerError)))
	}
	writeJSON(w, http.StatusOK, out)
}

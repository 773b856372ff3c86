package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to its HTTP status. Gate refusals are client
// errors; anything the voter cannot fix is a server-side status.
func statusFor(kind ballot.Kind) int {
	switch kind {
	case ballot.KindInvalid, ballot.KindElectionNotActive:
		return http.StatusBadRequest
	case ballot.KindNotRegistered, ballot.KindNotLedgerRegistered:
		return http.StatusForbidden
	case ballot.KindNotFound:
		return http.StatusNotFound
	case ballot.KindAlreadyVoted:
		return http.StatusConflict
	case ballot.KindLedgerUnavailable, ballot.KindLedgerProtocol, ballot.KindConfirmationTimeout, ballot.KindSubmissionFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error, kind}. Only the voter-safe message is
// sent; the cause is logged.
func (c *Controller) writeError(w http.ResponseWriter, op string, err error) {
	var be *ballot.Error
	if !errors.As(err, &be) {
		c.App.Logger.Error("Request failed", zap.String("op", op), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	status := statusFor(be.Kind)
	if status >= http.StatusInternalServerError {
		c.App.Logger.Error("Request failed", zap.String("op", op), zap.String("kind", string(be.Kind)), zap.Error(err))
	} else {
		c.App.Logger.Debug("Request refused", zap.String("op", op), zap.String("kind", string(be.Kind)))
	}
	writeJSON(w, status, map[string]string{"error": be.Public(), "kind": string(be.Kind)})
}

// optionalInt64 reads an integer query parameter. ok is false when the
// parameter is present but malformed.
func optionalInt64(r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, false
	}
	return &v, true
}

// activeElection returns the most recently started election that is active
// now, or nil.
func (c *Controller) activeElection(ctx context.Context) (*vote.Election, error) {
	elections, err := c.App.Store.ListElections(ctx)
	if err != nil {
		return nil, err
	}
	now := c.App.Now()
	for i := range elections {
		if elections[i].Active(now) {
			return &elections[i], nil
		}
	}
	return nil, nil
}

// electionScope resolves ?election_id=, defaulting to the active election.
// It returns nil when neither is available.
func (c *Controller) electionScope(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	id, ok := optionalInt64(r, "election_id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "election_id must be a positive integer")
		return nil, false
	}
	if id != nil {
		return id, true
	}
	active, err := c.activeElection(r.Context())
	if err != nil {
		c.writeError(w, "active election", err)
		return nil, false
	}
	if active == nil {
		return nil, true
	}
	return &active.ID, true
}

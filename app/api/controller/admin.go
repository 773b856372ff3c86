package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cesa-network/cesavote/pkg/ledger"
	"go.uber.org/zap"
)

// HandleLedgerStatus is the operator view of the ledger: node round,
// application, sender balance and pending ballots. Unlike public endpoints
// it includes the ledger error text.
func (c *Controller) HandleLedgerStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out := map[string]any{
		"mode":      c.App.Config.Ledger.Mode,
		"simulated": c.App.Ballots.Simulated(),
		"deployer":  c.App.Deployer.State(),
		"sources":   c.App.Tally.Sources(),
		"retrying":  c.App.Sweeper.InFlight(),
	}

	report, err := c.App.Deployer.Status(ctx, c.App.Ledger.Sender)
	out["node"] = report
	out["node_status"] = ledger.Classify(err)
	if err != nil {
		out["node_error"] = err.Error()
	}

	pending, err := c.App.Ballots.PendingVotes(ctx, 0, 1000)
	if err != nil {
		c.writeError(w, "pending votes", err)
		return
	}
	out["pending_votes"] = len(pending)
	writeJSON(w, http.StatusOK, out)
}

// HandleRetryPending runs one retry sweep. ?older_than= is a duration
// (default 1m) and ?limit= caps the batch (default 100).
func (c *Controller) HandleRetryPending(w http.ResponseWriter, r *http.Request) {
	olderThan := time.Minute
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeMessage(w, http.StatusBadRequest, "older_than must be a duration")
			return
		}
		olderThan = d
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	report, err := c.App.Sweeper.Run(r.Context(), olderThan, limit)
	if err != nil {
		c.App.Logger.Warn("Retry sweep interrupted", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

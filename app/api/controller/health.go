package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/cesa-network/cesavote/pkg/ledger"
)

// HandleHealth reports the database and ledger state. Only the database
// decides the status code; the ledger is optional in some modes.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := c.App.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "database connection error"})
		return
	}

	out := map[string]any{
		"status":    "ok",
		"algod":     "not_configured",
		"indexer":   "not_configured",
		"simulated": c.App.Ballots.Simulated(),
	}
	if l := c.App.Ledger; l != nil {
		if l.Node.Configured() {
			_, err := l.Node.Status(ctx)
			out["algod"] = ledger.Classify(err)
		}
		if l.Indexer.Configured() {
			out["indexer"] = ledger.Classify(l.Indexer.Healthy(ctx))
		}
	}
	if c.App.RedisClient != nil {
		out["redis"] = "ok"
		if err := c.App.RedisClient.Health(ctx); err != nil {
			out["redis"] = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, out)
}

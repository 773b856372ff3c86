package controller

import (
	"net/http"
	"strconv"
	"time"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

type recordView struct {
	TxID      string    `json:"txid"`
	Candidate string    `json:"candidate"`
	Election  string    `json:"election"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// HandleLedgerRecords lists the most recent mirror records. They carry no
// voter information.
func (c *Controller) HandleLedgerRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecordLimit)
	}

	records, err := c.App.Store.RecentLedgerRecords(r.Context(), limit)
	if err != nil {
		c.writeError(w, "ledger records", err)
		return
	}
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		status := "confirmed"
		if rec.Simulated {
			status = "simulated"
		}
		out = append(out, recordView{
			TxID:      rec.TxID,
			Candidate: rec.CandidateName,
			Election:  rec.ElectionName,
			Timestamp: rec.RecordedAt,
			Status:    status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

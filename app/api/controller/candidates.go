package controller

import (
	"net/http"
	"time"
)

type memberView struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Position int    `json:"position"`
}

type candidateView struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	ListName   string       `json:"list_name"`
	ImageURL   string       `json:"image_url"`
	Manifesto  string       `json:"manifesto"`
	ElectionID *int64       `json:"election_id"`
	VotesCount int64        `json:"votes_count"`
	Members    []memberView `json:"members"`
}

// HandleCandidates lists the candidates of ?election_id= (or the active
// election) with reconciled vote counts. Without any election every
// candidate is listed with its raw counter.
func (c *Controller) HandleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID, ok := c.electionScope(w, r)
	if !ok {
		return
	}

	list, err := c.App.Store.ListCandidates(ctx, electionID)
	if err != nil {
		c.writeError(w, "list candidates", err)
		return
	}

	var counts map[int64]int64
	if electionID != nil {
		counts = c.App.Tally.CountsForElection(ctx, *electionID)
	}

	out := make([]candidateView, 0, len(list))
	for _, cand := range list {
		view := candidateView{
			ID:         cand.ID,
			Name:       cand.Name,
			ListName:   cand.ListName,
			ImageURL:   cand.ImageRef,
			Manifesto:  cand.Manifesto,
			ElectionID: cand.ElectionID,
			VotesCount: cand.RawVoteCounter,
			Members:    make([]memberView, 0, len(cand.Members)),
		}
		if counts != nil {
			view.VotesCount = counts[cand.ID]
		}
		for _, m := range cand.Members {
			view.Members = append(view.Members, memberView{FullName: m.FullName, Role: m.Role, Position: m.Position})
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": out})
}

type electionView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

// HandleElections lists elections, most recent first.
func (c *Controller) HandleElections(w http.ResponseWriter, r *http.Request) {
	elections, err := c.App.Store.ListElections(r.Context())
	if err != nil {
		c.writeError(w, "list elections", err)
		return
	}
	now := c.App.Now()
	out := make([]electionView, 0, len(elections))
	for i := range elections {
		e := &elections[i]
		out = append(out, electionView{
			ID:        e.ID,
			Name:      e.Name,
			StartDate: e.StartTime,
			EndDate:   e.EndTime,
			IsActive:  e.Active(now),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"elections": out})
}

// HandleStats returns participation for ?election_id=, the active election,
// or every recorded vote when neither exists.
func (c *Controller) HandleStats(w http.ResponseWriter, r *http.Request) {
	electionID, ok := c.electionScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.App.Tally.Participation(r.Context(), electionID))
}

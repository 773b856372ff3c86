package vote

import "time"

type Election struct {
	ID        int64
	Name      string
	StartTime time.Time
	EndTime   time.Time
	CreatedBy string
}

// Active reports whether now falls in [StartTime, EndTime], both inclusive.
func (e *Election) Active(now time.Time) bool {
	return !now.Before(e.StartTime) && !now.After(e.EndTime)
}

// Candidate is a ballot option. ElectionID is nil for legacy candidates that
// appear in every election.
type Candidate struct {
	ID             int64
	Name           string
	ListName       string
	ImageRef       string
	Manifesto      string
	ElectionID     *int64
	RawVoteCounter int64
	Members        []CandidateMember
}

// BelongsTo reports whether the candidate may receive votes in electionID.
func (c *Candidate) BelongsTo(electionID int64) bool {
	return c.ElectionID == nil || *c.ElectionID == electionID
}

type CandidateMember struct {
	ID          int64
	CandidateID int64
	FullName    string
	Role        string
	Position    int
}

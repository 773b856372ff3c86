package tally

import (
	"context"

	"github.com/cesa-network/cesavote/pkg/utils"
	"go.uber.org/zap"
)

// Stats is the participation summary of an election, or of every election
// when it was computed without one.
type Stats struct {
	TotalVotes     int64   `json:"total_votes"`
	EligibleVoters int64   `json:"eligible_voters"`
	Participation  float64 `json:"participation"`
}

// Store is the slice of the database the reconciler needs beyond its sources.
type Store interface {
	VoteCounter
	CountLedgerRecords(ctx context.Context) (int64, error)
	CountEligibleVoters(ctx context.Context) (int64, error)
}

// Reconciler merges an ordered list of sources. Earlier sources take
// precedence when they are available and report a positive count.
type Reconciler struct {
	sources []CountSource
	store   Store
	logger  *zap.Logger
}

func NewReconciler(store Store, logger *zap.Logger, sources ...CountSource) *Reconciler {
	return &Reconciler{sources: sources, store: store, logger: logger}
}

// Sources returns the configured source names in precedence order.
func (r *Reconciler) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

func (r *Reconciler) collect(ctx context.Context, electionID int64) []Result {
	out := make([]Result, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Count(ctx, electionID)
		if !out[i].Available {
			r.logger.Debug("Count source unavailable",
				zap.String("source", s.Name()),
				zap.Int64("election_id", electionID))
		}
	}
	return out
}

// pick is the single reduction rule shared by per-candidate and aggregate
// counts.
func pick(results []Result, value func(Result) int64) int64 {
	for _, res := range results {
		if !res.Available {
			continue
		}
		if v := value(res); v > 0 {
			return v
		}
	}
	return 0
}

// Reduce applies the precedence rule to already collected results. Every
// candidate mentioned by any available source is present in the output.
func Reduce(results []Result) (map[int64]int64, int64) {
	ids := map[int64]struct{}{}
	for _, res := range results {
		if !res.Available {
			continue
		}
		for id := range res.ByCandidate {
			ids[id] = struct{}{}
		}
	}
	counts := make(map[int64]int64, len(ids))
	for id := range ids {
		counts[id] = pick(results, func(r Result) int64 { return r.ByCandidate[id] })
	}
	total := pick(results, func(r Result) int64 { return r.Total })
	return counts, total
}

// CountsForElection returns reconciled counts keyed by candidate id.
// Candidates without votes may be absent.
func (r *Reconciler) CountsForElection(ctx context.Context, electionID int64) map[int64]int64 {
	counts, _ := Reduce(r.collect(ctx, electionID))
	return counts
}

// TotalVotes returns the reconciled aggregate for the election.
func (r *Reconciler) TotalVotes(ctx context.Context, electionID int64) int64 {
	_, total := Reduce(r.collect(ctx, electionID))
	return total
}

// Snapshot returns counts and total from one pass over the sources.
func (r *Reconciler) Snapshot(ctx context.Context, electionID int64) (map[int64]int64, int64) {
	return Reduce(r.collect(ctx, electionID))
}

// Participation computes stats for electionID. Without one it counts every
// mirror record, falling back to every vote row when the mirror is empty.
func (r *Reconciler) Participation(ctx context.Context, electionID *int64) Stats {
	var total int64
	if electionID != nil {
		total = r.TotalVotes(ctx, *electionID)
	} else {
		total = r.allVotes(ctx)
	}

	eligible, err := r.store.CountEligibleVoters(ctx)
	if err != nil {
		r.logger.Warn("Eligible voter count failed", zap.Error(err))
		eligible = 0
	}
	return NewStats(total, eligible)
}

func (r *Reconciler) allVotes(ctx context.Context) int64 {
	n, err := r.store.CountLedgerRecords(ctx)
	if err != nil {
		r.logger.Warn("Mirror record count failed", zap.Error(err))
	}
	if n > 0 {
		return n
	}
	n, err = r.store.CountVotes(ctx, nil)
	if err != nil {
		r.logger.Warn("Vote count failed", zap.Error(err))
	}
	return n
}

// Invalidate drops cached ledger reads after a confirmed write.
func (r *Reconciler) Invalidate() {
	for _, s := range r.sources {
		if inv, ok := s.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
}

// NewStats derives the participation percentage, rounded to one decimal.
func NewStats(total, eligible int64) Stats {
	s := Stats{TotalVotes: total, EligibleVoters: eligible}
	if eligible > 0 {
		s.Participation = utils.Round1(float64(total) / float64(eligible) * 100)
	}
	return s
}

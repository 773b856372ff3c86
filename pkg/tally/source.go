// Package tally reconciles vote counts from the ledger indexer, the local
// mirror of confirmed writes and the raw local counters.
package tally

import (
	"context"
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Result is one source's view of an election. Available is false when the
// source could not be read at all, which is different from counting zero.
type Result struct {
	Available   bool
	ByCandidate map[int64]int64
	Total       int64
}

func unavailable() Result { return Result{} }

// CountSource is one place votes can be counted from.
type CountSource interface {
	Name() string
	Count(ctx context.Context, electionID int64) Result
}

// MirrorStore is what MirrorSource reads.
type MirrorStore interface {
	MirrorCounts(ctx context.Context, electionID int64) (map[int64]int64, error)
}

// MirrorSource counts local mirror records of confirmed ledger writes.
type MirrorSource struct {
	store  MirrorStore
	logger *zap.Logger
}

func NewMirrorSource(store MirrorStore, logger *zap.Logger) *MirrorSource {
	return &MirrorSource{store: store, logger: logger}
}

func (s *MirrorSource) Name() string { return "mirror" }

func (s *MirrorSource) Count(ctx context.Context, electionID int64) Result {
	counts, err := s.store.MirrorCounts(ctx, electionID)
	if err != nil {
		s.logger.Warn("Mirror count failed", zap.Int64("election_id", electionID), zap.Error(err))
		return unavailable()
	}
	return Result{Available: true, ByCandidate: counts, Total: sum(counts)}
}

// CandidateLister is the part of the store RawSource reads counters from.
type CandidateLister interface {
	ListCandidates(ctx context.Context, electionID *int64) ([]vote.Candidate, error)
}

type VoteCounter interface {
	CountVotes(ctx context.Context, electionID *int64) (int64, error)
}

// RawSource reads the advisory per-candidate counters and the number of
// vote rows.
type RawSource struct {
	candidates CandidateLister
	votes      VoteCounter
	logger     *zap.Logger
}

func NewRawSource(candidates CandidateLister, votes VoteCounter, logger *zap.Logger) *RawSource {
	return &RawSource{candidates: candidates, votes: votes, logger: logger}
}

func (s *RawSource) Name() string { return "raw" }

func (s *RawSource) Count(ctx context.Context, electionID int64) Result {
	list, err := s.candidates.ListCandidates(ctx, &electionID)
	if err != nil {
		s.logger.Warn("Raw candidate counters unavailable", zap.Int64("election_id", electionID), zap.Error(err))
		return unavailable()
	}
	total, err := s.votes.CountVotes(ctx, &electionID)
	if err != nil {
		s.logger.Warn("Raw vote count unavailable", zap.Int64("election_id", electionID), zap.Error(err))
		return unavailable()
	}
	counts := make(map[int64]int64, len(list))
	for _, c := range list {
		counts[c.ID] = c.RawVoteCounter
	}
	return Result{Available: true, ByCandidate: counts, Total: total}
}

type cachedScan struct {
	notes   []ballot.Note
	fetched time.Time
}

// IndexerSource decodes ballot notes found by an indexer search. The scan is
// shared by all elections and cached for ttl.
type IndexerSource struct {
	indexer ledger.Indexer
	query   ledger.SearchQuery
	ttl     time.Duration
	now     func() time.Time
	cache   *xsync.Map[string, cachedScan]
	logger  *zap.Logger
}

const scanKey = "notes"

// NewIndexerSource searches transactions sent by sender (when not empty), at
// most limit of them.
func NewIndexerSource(indexer ledger.Indexer, sender string, limit int, ttl time.Duration, logger *zap.Logger) *IndexerSource {
	return &IndexerSource{
		indexer: indexer,
		query:   ledger.SearchQuery{Address: sender, TxType: "pay", Limit: limit},
		ttl:     ttl,
		now:     time.Now,
		cache:   xsync.NewMap[string, cachedScan](),
		logger:  logger,
	}
}

func (s *IndexerSource) Name() string { return "indexer" }

func (s *IndexerSource) Count(ctx context.Context, electionID int64) Result {
	if s.indexer == nil || !s.indexer.Configured() {
		return unavailable()
	}
	notes, ok := s.notes(ctx)
	if !ok {
		return unavailable()
	}
	counts := map[int64]int64{}
	for _, n := range notes {
		if n.ElectionID == electionID {
			counts[n.CandidateID]++
		}
	}
	return Result{Available: true, ByCandidate: counts, Total: sum(counts)}
}

func (s *IndexerSource) notes(ctx context.Context) ([]ballot.Note, bool) {
	if cached, ok := s.cache.Load(scanKey); ok && s.now().Sub(cached.fetched) < s.ttl {
		return cached.notes, true
	}

	txs, err := s.indexer.SearchTransactions(ctx, s.query)
	if err != nil {
		s.logger.Warn("Indexer scan failed",
			zap.String("class", ledger.Classify(err)),
			zap.Error(err))
		return nil, false
	}
	notes := make([]ballot.Note, 0, len(txs))
	for _, tx := range txs {
		if len(tx.Note) == 0 {
			continue
		}
		n, err := ballot.DecodeNote(tx.Note)
		if err != nil {
			continue
		}
		notes = append(notes, n)
	}
	s.cache.Store(scanKey, cachedScan{notes: notes, fetched: s.now()})
	return notes, true
}

// Invalidate drops the cached scan so the next count hits the indexer.
func (s *IndexerSource) Invalidate() { s.cache.Delete(scanKey) }

func sum(m map[int64]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}

package ballot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// SweepReport summarises one pass over pending ballots.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sweeper retries pending ballots on a bounded worker pool. A ballot already
// being retried by an overlapping sweep is skipped.
type Sweeper struct {
	svc      *Service
	pool     pond.Pool
	inflight *xsync.Map[int64, time.Time]
	logger   *zap.Logger
}

func NewSweeper(svc *Service, workers int, logger *zap.Logger) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{
		svc:      svc,
		pool:     pond.NewPool(workers),
		inflight: xsync.NewMap[int64, time.Time](),
		logger:   logger,
	}
}

// InFlight returns how many ballots are being retried right now.
func (s *Sweeper) InFlight() int { return s.inflight.Size() }

// Run retries up to limit ballots that have been pending for at least
// olderThan.
func (s *Sweeper) Run(ctx context.Context, olderThan time.Duration, limit int) (SweepReport, error) {
	pending, err := s.svc.PendingVotes(ctx, olderThan, limit)
	if err != nil {
		return SweepReport{}, err
	}
	report := SweepReport{Scanned: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	var confirmed, stillPending, failed, skipped atomic.Int64
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, p := range pending {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if _, loaded := s.inflight.LoadOrStore(p.VoteID, time.Now()); loaded {
				skipped.Add(1)
				return
			}
			defer s.inflight.Delete(p.VoteID)

			outcome, err := s.svc.Retry(groupCtx, p)
			switch outcome {
			case OutcomeConfirmed:
				confirmed.Add(1)
			case OutcomeStillPending:
				stillPending.Add(1)
			default:
				failed.Add(1)
			}
			if err != nil {
				s.logger.Warn("Pending vote retry did not confirm",
					zap.Int64("vote_id", p.VoteID),
					zap.String("outcome", string(outcome)),
					zap.String("kind", string(KindOf(err))),
					zap.Error(err))
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn("Some retry tasks failed", zap.Error(err))
	}

	report.Confirmed = int(confirmed.Load())
	report.Pending = int(stillPending.Load())
	report.Failed = int(failed.Load())
	report.Skipped = int(skipped.Load())
	s.logger.Info("Pending vote sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("confirmed", report.Confirmed),
		zap.Int("pending", report.Pending),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, ctx.Err()
}

// Close waits for running retries and releases the workers.
func (s *Sweeper) Close() {
	s.pool.StopAndWait()
}

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/usecase"
)

// PruneCounter counts removed dedup marks.
type PruneCounter interface {
	AddDedupPruned(n int64)
}

// DedupPruner removes processed-event marks older than the retention
// window. The ledger's event id index still rejects pruned ids.
type DedupPruner struct {
	dedup     usecase.EventDeduplicator
	counter   PruneCounter
	logger    zerolog.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewDedupPruner creates a DedupPruner. Retention below the provider
// redelivery window is raised to usecase.MinDedupRetention.
func NewDedupPruner(dedup usecase.EventDeduplicator, counter PruneCounter, retention, interval time.Duration, logger zerolog.Logger) *DedupPruner {
	if retention < usecase.MinDedupRetention {
		retention = usecase.MinDedupRetention
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &DedupPruner{
		dedup:     dedup,
		counter:   counter,
		logger:    componentLogger(logger, "dedup_pruner"),
		retention: retention,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs until ctx is cancelled.
func (p *DedupPruner) Start(ctx context.Context) error {
	p.logger.Info().
		Dur("retention", p.retention).
		Dur("interval", p.interval).
		Msg("dedup pruner started")
	return runEvery(ctx, p.interval, func(ctx context.Context) {
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Error().Err(err).Msg("dedup prune failed")
		}
	})
}

// RunOnce prunes once and returns the number of removed marks.
func (p *DedupPruner) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.dedup.Prune(ctx, p.now().Add(-p.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info().Int64("pruned", n).Msg("pruned processed events")
	}
	if p.counter != nil {
		p.counter.AddDedupPruned(n)
	}
	return n, nil
}

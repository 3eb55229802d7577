package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/revledger/internal/infrastructure/postgres/generated"
	"github.com/iho/revledger/internal/usecase"
)

// DedupRepository implements usecase.EventDeduplicator on the
// processed_events table.
type DedupRepository struct {
	queries *generated.Queries
}

// NewDedupRepository creates a new DedupRepository.
func NewDedupRepository(pool *pgxpool.Pool) *DedupRepository {
	return newDedupRepositoryWithDB(pool)
}

func newDedupRepositoryWithDB(db generated.DBTX) *DedupRepository {
	return &DedupRepository{queries: generated.New(db)}
}

// Accept inserts the mark unless it exists. A concurrent insert of the same
// id blocks on the primary key until the other transaction ends, so exactly
// one caller sees true.
func (r *DedupRepository) Accept(ctx context.Context, tx usecase.Transaction, eventID string, seenAt time.Time) (bool, error) {
	queries := generated.New(pgxTxFrom(tx))

	inserted, err := queries.InsertProcessedEvent(ctx, generated.InsertProcessedEventParams{
		EventID: eventID,
		SeenAt:  timeToPgTimestamptz(seenAt),
	})
	if err != nil {
		return false, err
	}
	return inserted == 1, nil
}

// Prune deletes marks older than before.
func (r *DedupRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	return r.queries.DeleteProcessedEventsBefore(ctx, timeToPgTimestamptz(before))
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/iho/revledger/internal/usecase"
)

// DedupRepository implements usecase.EventDeduplicator.
type DedupRepository struct {
	db *sql.DB
}

// NewDedupRepository creates a new DedupRepository.
func NewDedupRepository(db *sql.DB) *DedupRepository {
	return &DedupRepository{db: db}
}

// Accept inserts the mark unless it already exists.
func (r *DedupRepository) Accept(ctx context.Context, tx usecase.Transaction, eventID string, seenAt time.Time) (bool, error) {
	result, err := sqlTxFrom(tx).ExecContext(ctx,
		`INSERT INTO processed_events (event_id, seen_at) VALUES (?, ?) ON CONFLICT (event_id) DO NOTHING`,
		eventID, seenAt.UnixMicro())
	if err != nil {
		return false, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted == 1, nil
}

// Prune deletes marks older than before.
func (r *DedupRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM processed_events WHERE seen_at < ?`, before.UnixMicro())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

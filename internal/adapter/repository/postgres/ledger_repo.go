package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/postgres/generated"
	"github.com/iho/revledger/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	queries *generated.Queries
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return newLedgerRepositoryWithDB(pool)
}

func newLedgerRepositoryWithDB(db generated.DBTX) *LedgerRepository {
	return &LedgerRepository{queries: generated.New(db)}
}

// Append locks the chain head, links a new entry after it and advances the
// head. The lock is held until tx ends, so concurrent appends serialize.
func (r *LedgerRepository) Append(ctx context.Context, tx usecase.Transaction, event *domain.PaymentEvent, split domain.SplitResult, recordedAt time.Time) (*domain.LedgerEntry, error) {
	queries := generated.New(pgxTxFrom(tx))

	head, err := queries.LockLedgerHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock ledger head: %w", err)
	}

	entry, err := domain.NewLedgerEntry(head.LastSequence+1, event, split, head.LastHash, recordedAt)
	if err != nil {
		return nil, usecase.Permanent(err)
	}

	metadata, err := encodeMetadata(entry.Event.Metadata)
	if err != nil {
		return nil, usecase.Permanent(err)
	}

	err = queries.InsertLedgerEntry(ctx, generated.InsertLedgerEntryParams{
		Sequence:       entry.Sequence,
		EventID:        entry.Event.EventID,
		Kind:           string(entry.Event.Kind),
		Stream:         string(entry.Event.Stream),
		Provider:       string(entry.Event.Provider),
		GrossAmount:    entry.Event.GrossAmount,
		EventTimestamp: timeToPgTimestamptz(entry.Event.Timestamp),
		Metadata:       metadata,
		CorrelationKey: entry.Event.CorrelationKey(),
		Charity:        entry.Split.Charity,
		Infrastructure: entry.Split.Infrastructure,
		Founder:        entry.Split.Founder,
		PreviousHash:   entry.PreviousHash,
		Hash:           entry.Hash,
		RecordedAt:     timeToPgTimestamptz(entry.RecordedAt),
	})
	if err != nil {
		if isUniqueViolation(err, eventIDIndex) {
			return nil, usecase.ErrDuplicateEvent
		}
		return nil, fmt.Errorf("insert ledger entry %d: %w", entry.Sequence, err)
	}

	err = queries.AdvanceLedgerHead(ctx, generated.AdvanceLedgerHeadParams{
		LastSequence: entry.Sequence,
		LastHash:     entry.Hash,
	})
	if err != nil {
		return nil, fmt.Errorf("advance ledger head: %w", err)
	}

	return entry, nil
}

// ReadAll returns the whole chain in sequence order.
func (r *LedgerRepository) ReadAll(ctx context.Context) ([]*domain.LedgerEntry, error) {
	rows, err := r.queries.ListLedgerEntries(ctx)
	if err != nil {
		return nil, err
	}
	return rowsToLedgerEntries(rows)
}

// ReadFrom returns up to limit entries starting at sequence from.
func (r *LedgerRepository) ReadFrom(ctx context.Context, from int64, limit int) ([]*domain.LedgerEntry, error) {
	rows, err := r.queries.ListLedgerEntriesFrom(ctx, generated.ListLedgerEntriesFromParams{
		Sequence: from,
		Limit:    int32(limit),
	})
	if err != nil {
		return nil, err
	}
	return rowsToLedgerEntries(rows)
}

// GetByEventID returns the entry recorded for eventID.
func (r *LedgerRepository) GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error) {
	row, err := r.queries.GetLedgerEntryByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return rowToLedgerEntry(row)
}

// CorrelationTotals sums payments and refunds recorded under key. A nil tx
// reads outside any transaction.
func (r *LedgerRepository) CorrelationTotals(ctx context.Context, tx usecase.Transaction, key string) (int64, int64, error) {
	queries := r.queries
	if tx != nil {
		queries = generated.New(pgxTxFrom(tx))
	}

	totals, err := queries.GetCorrelationTotals(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	return totals.Payments, totals.Refunds, nil
}

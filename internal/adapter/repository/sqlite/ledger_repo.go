package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

const (
	selectHead = `SELECT last_sequence, last_hash FROM ledger_head WHERE id = 1`

	advanceHead = `UPDATE ledger_head SET last_sequence = ?, last_hash = ? WHERE id = 1`

	insertEntry = `INSERT INTO ledger_entries (
    sequence, event_id, kind, stream, provider, gross_amount, event_timestamp,
    metadata, correlation_key, charity, infrastructure, founder,
    previous_hash, hash, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCorrelationTotals = `SELECT
    COALESCE(SUM(CASE WHEN kind = 'payment' THEN gross_amount END), 0),
    COALESCE(SUM(CASE WHEN kind = 'refund' THEN gross_amount END), 0)
FROM ledger_entries
WHERE correlation_key = ?`
)

// LedgerRepository implements usecase.LedgerRepository on SQLite.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append links a new entry after the head. The immediate transaction holds
// the database write lock, which serializes appends.
func (r *LedgerRepository) Append(ctx context.Context, tx usecase.Transaction, event *domain.PaymentEvent, split domain.SplitResult, recordedAt time.Time) (*domain.LedgerEntry, error) {
	sqlTx := sqlTxFrom(tx)

	var (
		lastSequence int64
		lastHash     string
	)
	if err := sqlTx.QueryRowContext(ctx, selectHead).Scan(&lastSequence, &lastHash); err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}

	entry, err := domain.NewLedgerEntry(lastSequence+1, event, split, lastHash, recordedAt)
	if err != nil {
		return nil, usecase.Permanent(err)
	}

	metadata, err := json.Marshal(entry.Event.Metadata)
	if err != nil {
		return nil, usecase.Permanent(err)
	}

	_, err = sqlTx.ExecContext(ctx, insertEntry,
		entry.Sequence,
		entry.Event.EventID,
		string(entry.Event.Kind),
		string(entry.Event.Stream),
		string(entry.Event.Provider),
		entry.Event.GrossAmount,
		formatTime(entry.Event.Timestamp),
		string(metadata),
		entry.Event.CorrelationKey(),
		entry.Split.Charity,
		entry.Split.Infrastructure,
		entry.Split.Founder,
		entry.PreviousHash,
		entry.Hash,
		formatTime(entry.RecordedAt),
	)
	if err != nil {
		if isEventIDConflict(err) {
			return nil, usecase.ErrDuplicateEvent
		}
		return nil, fmt.Errorf("insert ledger entry %d: %w", entry.Sequence, err)
	}

	if _, err := sqlTx.ExecContext(ctx, advanceHead, entry.Sequence, entry.Hash); err != nil {
		return nil, fmt.Errorf("advance ledger head: %w", err)
	}

	return entry, nil
}

// ReadAll returns the whole chain in sequence order.
func (r *LedgerRepository) ReadAll(ctx context.Context) ([]*domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries ORDER BY sequence`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ReadFrom returns up to limit entries starting at sequence from.
func (r *LedgerRepository) ReadFrom(ctx context.Context, from int64, limit int) ([]*domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE sequence >= ? ORDER BY sequence LIMIT ?`,
		from, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// GetByEventID returns the entry recorded for eventID.
func (r *LedgerRepository) GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE event_id = ?`, eventID)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// CorrelationTotals sums payments and refunds recorded under key. A nil tx
// reads outside any transaction.
func (r *LedgerRepository) CorrelationTotals(ctx context.Context, tx usecase.Transaction, key string) (int64, int64, error) {
	var q dbtx = r.db
	if tx != nil {
		q = sqlTxFrom(tx)
	}

	var payments, refunds int64
	if err := q.QueryRowContext(ctx, selectCorrelationTotals, key).Scan(&payments, &refunds); err != nil {
		return 0, 0, err
	}
	return payments, refunds, nil
}

func collectEntries(rows *sql.Rows) ([]*domain.LedgerEntry, error) {
	defer rows.Close()

	entries := make([]*domain.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

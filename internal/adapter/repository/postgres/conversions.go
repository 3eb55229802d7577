package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/postgres/generated"
)

const (
	pgErrUniqueViolation = "23505"

	eventIDIndex = "idx_ledger_entries_event_id"
)

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t,
		Valid: !t.IsZero(),
	}
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return json.Marshal(metadata)
}

func rowToLedgerEntry(row generated.LedgerEntry) (*domain.LedgerEntry, error) {
	metadata := map[string]string{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of entry %d: %w", row.Sequence, err)
		}
	}

	return &domain.LedgerEntry{
		Sequence: row.Sequence,
		Event: domain.PaymentEvent{
			EventID:     row.EventID,
			Kind:        domain.EventKind(row.Kind),
			Stream:      domain.Stream(row.Stream),
			Provider:    domain.Provider(row.Provider),
			GrossAmount: row.GrossAmount,
			Timestamp:   domain.NormalizeTime(row.EventTimestamp.Time),
			Metadata:    metadata,
		},
		Split: domain.SplitResult{
			Charity:        row.Charity,
			Infrastructure: row.Infrastructure,
			Founder:        row.Founder,
		},
		PreviousHash: row.PreviousHash,
		Hash:         row.Hash,
		RecordedAt:   domain.NormalizeTime(row.RecordedAt.Time),
	}, nil
}

func rowsToLedgerEntries(rows []generated.LedgerEntry) ([]*domain.LedgerEntry, error) {
	entries := make([]*domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := rowToLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgErrUniqueViolation && pgErr.ConstraintName == constraint
}

func rowToOutboxEvent(row generated.OutboxEvent) (*domain.OutboxEvent, error) {
	event := &domain.OutboxEvent{
		ID:            row.ID,
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		EventType:     row.EventType,
		CreatedAt:     row.CreatedAt.Time,
		Published:     row.Published,
	}

	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of outbox event %s: %w", row.ID, err)
		}
	}
	if row.PublishedAt.Valid {
		publishedAt := row.PublishedAt.Time
		event.PublishedAt = &publishedAt
	}

	return event, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/postgres/generated"
	"github.com/iho/revledger/internal/usecase"
)

// OutboxRepository stores entry notifications next to the ledger rows that
// raised them.
type OutboxRepository struct {
	queries *generated.Queries
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return newOutboxRepositoryWithDB(pool)
}

func newOutboxRepositoryWithDB(db generated.DBTX) *OutboxRepository {
	return &OutboxRepository{queries: generated.New(db)}
}

// Create writes a notification inside the append transaction, so it exists
// exactly when the entry does.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return usecase.Permanent(fmt.Errorf("encode payload of %s: %w", event.EventType, err))
	}

	_, err = generated.New(pgxTxFrom(tx)).CreateOutboxEvent(ctx, generated.CreateOutboxEventParams{
		ID:            event.ID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Payload:       payload,
		CreatedAt:     timeToPgTimestamptz(event.CreatedAt),
		Published:     event.Published,
	})
	return err
}

// GetUnpublished returns pending notifications, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.queries.GetUnpublishedEvents(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	return rowsToOutboxEvents(rows)
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return r.queries.MarkEventPublished(ctx, generated.MarkEventPublishedParams{
		ID:          id,
		PublishedAt: timeToPgTimestamptz(publishedAt),
	})
}

// ListForEvent returns every notification raised while recording eventID.
func (r *OutboxRepository) ListForEvent(ctx context.Context, eventID string) ([]*domain.OutboxEvent, error) {
	rows, err := r.queries.ListEventsForEntry(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return rowsToOutboxEvents(rows)
}

// PurgePublished deletes notifications delivered before the cutoff.
func (r *OutboxRepository) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	return r.queries.PurgePublishedEvents(ctx, timeToPgTimestamptz(before))
}

func rowsToOutboxEvents(rows []generated.OutboxEvent) ([]*domain.OutboxEvent, error) {
	events := make([]*domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		event, err := rowToOutboxEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

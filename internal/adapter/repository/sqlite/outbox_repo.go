package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, created_at, published_at, published`

// OutboxRepository stores entry notifications in the ledger database.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create writes a notification inside the append transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return usecase.Permanent(err)
	}

	_, err = sqlTxFrom(tx).ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		string(payload),
		formatTime(event.CreatedAt),
		event.Published,
	)
	return err
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events WHERE published = 0 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectOutboxEvents(rows)
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET published = 1, published_at = ? WHERE id = ?`, formatTime(publishedAt), id)
	return err
}

// ListForEvent returns every notification raised while recording eventID.
func (r *OutboxRepository) ListForEvent(ctx context.Context, eventID string) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events
WHERE aggregate_type = ? AND aggregate_id = ?
ORDER BY created_at, id`,
		domain.AggregateTypeLedgerEntry, eventID)
	if err != nil {
		return nil, err
	}
	return collectOutboxEvents(rows)
}

// PurgePublished deletes notifications delivered before the cutoff.
func (r *OutboxRepository) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE published = 1 AND published_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectOutboxEvents(rows *sql.Rows) ([]*domain.OutboxEvent, error) {
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		var (
			event       domain.OutboxEvent
			payload     string
			createdAt   string
			publishedAt sql.NullString
		)
		err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&payload,
			&createdAt,
			&publishedAt,
			&event.Published,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of outbox event %s: %w", event.ID, err)
		}
		if event.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if publishedAt.Valid {
			t, err := parseTime(publishedAt.String)
			if err != nil {
				return nil, err
			}
			event.PublishedAt = &t
		}

		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

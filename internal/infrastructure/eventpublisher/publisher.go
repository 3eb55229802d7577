package eventpublisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/infrastructure/notify"
	"github.com/iho/revledger/internal/usecase"
)

// EventPublisher drains the outbox written alongside ledger entries.
type EventPublisher struct {
	outboxRepo    usecase.OutboxRepository
	publisher     Publisher
	counter       PublishCounter
	logger        zerolog.Logger
	batchSize     int
	interval      time.Duration
	retention     time.Duration
	lastCleanup   time.Time
	cleanupPeriod time.Duration
	now           func() time.Time
}

// Publisher defines the interface for publishing events to external systems.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// PublishCounter counts published events by type.
type PublishCounter interface {
	IncPublished(eventType string)
}

// Config for EventPublisher.
type Config struct {
	OutboxRepo usecase.OutboxRepository
	Publisher  Publisher
	Counter    PublishCounter
	Logger     zerolog.Logger
	BatchSize  int           // Number of events to fetch per batch
	Interval   time.Duration // Polling interval
	// Retention is how long published rows are kept. Zero keeps them forever.
	Retention time.Duration
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(cfg Config) *EventPublisher {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}

	return &EventPublisher{
		outboxRepo:    cfg.OutboxRepo,
		publisher:     cfg.Publisher,
		counter:       cfg.Counter,
		logger:        cfg.Logger.With().Str("component", "outbox_publisher").Logger(),
		batchSize:     cfg.BatchSize,
		interval:      cfg.Interval,
		retention:     cfg.Retention,
		cleanupPeriod: time.Hour,
		now:           time.Now,
	}
}

// Start publishes on every tick until ctx is cancelled.
func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.logger.Info().
		Int("batch_size", ep.batchSize).
		Dur("interval", ep.interval).
		Msg("event publisher started")

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	ep.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			ep.logger.Info().Msg("event publisher shutting down")
			return ctx.Err()
		case <-ticker.C:
			ep.tick(ctx)
		}
	}
}

func (ep *EventPublisher) tick(ctx context.Context) {
	if err := ep.processEvents(ctx); err != nil {
		ep.logger.Error().Err(err).Msg("error processing events")
	}
	if err := ep.cleanup(ctx); err != nil {
		ep.logger.Error().Err(err).Msg("error purging published events")
	}
}

// processEvents fetches and publishes a batch of unpublished events.
func (ep *EventPublisher) processEvents(ctx context.Context) error {
	events, err := ep.outboxRepo.GetUnpublished(ctx, ep.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	ep.logger.Debug().Int("count", len(events)).Msg("processing events")

	for _, event := range events {
		if err := ep.publisher.Publish(ctx, event); err != nil {
			ep.logger.Error().
				Err(err).
				Str("outbox_id", event.ID).
				Str("event_type", event.EventType).
				Msg("failed to publish event")
			// The event stays unpublished and is retried on the next tick.
			continue
		}

		if ep.counter != nil {
			ep.counter.IncPublished(event.EventType)
		}

		if err := ep.outboxRepo.MarkPublished(ctx, event.ID, ep.now()); err != nil {
			ep.logger.Error().
				Err(err).
				Str("outbox_id", event.ID).
				Msg("failed to mark event as published")
		}
	}

	return nil
}

func (ep *EventPublisher) cleanup(ctx context.Context) error {
	if ep.retention <= 0 {
		return nil
	}
	now := ep.now()
	if now.Sub(ep.lastCleanup) < ep.cleanupPeriod {
		return nil
	}
	ep.lastCleanup = now

	purged, err := ep.outboxRepo.PurgePublished(ctx, now.Add(-ep.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		ep.logger.Info().Int64("purged", purged).Msg("purged published events")
	}
	return nil
}

// LogPublisher is a simple publisher that logs events.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("outbox_id", event.ID).
		Str("event_type", event.EventType).
		Str("aggregate_type", event.AggregateType).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", payload).
		Msg("event published")

	return nil
}

// Notification is the document posted to the notification webhook.
type Notification struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Data        map[string]any `json:"data"`
}

// WebhookPublisher posts every outbox event to a webhook.
type WebhookPublisher struct {
	client *notify.WebhookClient
}

// NewWebhookPublisher creates a new WebhookPublisher.
func NewWebhookPublisher(client *notify.WebhookClient) *WebhookPublisher {
	return &WebhookPublisher{client: client}
}

// Publish posts the event.
func (p *WebhookPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	return p.client.PostJSON(ctx, Notification{
		ID:          event.ID,
		Type:        event.EventType,
		AggregateID: event.AggregateID,
		OccurredAt:  event.CreatedAt,
		Data:        event.Payload,
	})
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
)

// alertTimeout bounds delivery of a failure alert after the caller's
// context may already be gone.
const alertTimeout = 5 * time.Second

// AllocationDeps wires an AllocationUseCase. SeenCache, Cache, Alerter and
// Metrics are optional.
type AllocationDeps struct {
	TxManager TransactionManager
	Ledger    LedgerRepository
	Dedup     EventDeduplicator
	Outbox    OutboxRepository
	IDGen     IDGenerator
	Retrier   Retrier
	SeenCache SeenCache
	Cache     Cache
	Alerter   Alerter
	Metrics   Metrics
	Logger    zerolog.Logger
	Policy    domain.SplitPolicy
	// Retention is the seen-cache TTL; it matches the dedup retention window.
	Retention time.Duration
	Now       func() time.Time
}

// AllocationUseCase turns payment events into ledger entries. It is the
// transaction boundary: dedup mark, entry and outbox rows commit together.
type AllocationUseCase struct {
	txManager TransactionManager
	ledger    LedgerRepository
	dedup     EventDeduplicator
	outbox    OutboxRepository
	idGen     IDGenerator
	retrier   Retrier
	seen      SeenCache
	cache     Cache
	alerter   Alerter
	metrics   Metrics
	logger    zerolog.Logger
	policy    domain.SplitPolicy
	retention time.Duration
	now       func() time.Time
}

// NewAllocationUseCase creates a new AllocationUseCase. The policy is
// validated once here so a misconfigured process fails at startup.
func NewAllocationUseCase(deps AllocationDeps) (*AllocationUseCase, error) {
	if err := deps.Policy.Validate(); err != nil {
		return nil, err
	}
	if deps.TxManager == nil || deps.Ledger == nil || deps.Dedup == nil || deps.Outbox == nil || deps.IDGen == nil || deps.Retrier == nil {
		return nil, errors.New("allocation use case: missing required dependency")
	}

	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	retention := deps.Retention
	if retention <= 0 {
		retention = DefaultDedupRetention
	}

	return &AllocationUseCase{
		txManager: deps.TxManager,
		ledger:    deps.Ledger,
		dedup:     deps.Dedup,
		outbox:    deps.Outbox,
		idGen:     deps.IDGen,
		retrier:   deps.Retrier,
		seen:      deps.SeenCache,
		cache:     deps.Cache,
		alerter:   deps.Alerter,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "allocation").Logger(),
		policy:    deps.Policy,
		retention: retention,
		now:       now,
	}, nil
}

// Policy returns the split policy in force.
func (uc *AllocationUseCase) Policy() domain.SplitPolicy {
	return uc.policy
}

// Process validates, deduplicates, splits and appends one event.
func (uc *AllocationUseCase) Process(ctx context.Context, event *domain.PaymentEvent) Outcome {
	start := time.Now()
	outcome := uc.process(ctx, event)
	if uc.metrics != nil {
		uc.metrics.ObserveOutcome(outcome.Status, time.Since(start))
	}
	return outcome
}

// Replay reprocesses events in order. Events already in the ledger come
// back as duplicates.
func (uc *AllocationUseCase) Replay(ctx context.Context, events []*domain.PaymentEvent) []Outcome {
	outcomes := make([]Outcome, 0, len(events))
	for _, event := range events {
		outcomes = append(outcomes, uc.Process(ctx, event))
	}
	return outcomes
}

func (uc *AllocationUseCase) process(ctx context.Context, event *domain.PaymentEvent) Outcome {
	if event == nil {
		return Rejected(fmt.Errorf("%w: event is required", domain.ErrValidation))
	}
	if err := event.Validate(); err != nil {
		uc.logger.Info().Str("event_id", event.EventID).Err(err).Msg("event rejected")
		return Rejected(err)
	}

	normalized := event.Normalized()
	log := uc.logger.With().Str("event_id", normalized.EventID).Logger()

	if uc.seen != nil {
		seen, err := uc.seen.Seen(ctx, normalized.EventID)
		if err != nil {
			log.Warn().Err(err).Msg("seen cache lookup failed")
		} else if seen {
			log.Debug().Msg("duplicate event (cached)")
			return Duplicate()
		}
	}

	var (
		entry           *domain.LedgerEntry
		duplicate       bool
		commitUncertain bool
		attempts        int
	)

	err := uc.retrier.Retry(ctx, func(attemptCtx context.Context) error {
		attempts++
		if attempts > 1 && uc.metrics != nil {
			uc.metrics.IncAppendRetry()
		}

		if commitUncertain {
			existing, err := uc.ledger.GetByEventID(attemptCtx, normalized.EventID)
			switch {
			case err == nil:
				log.Info().Int64("sequence", existing.Sequence).Msg("previous commit was durable")
				entry = existing
				return nil
			case !errors.Is(err, domain.ErrEntryNotFound):
				return err
			}
			commitUncertain = false
		}

		recorded, err := uc.appendOnce(attemptCtx, normalized)
		switch {
		case errors.Is(err, ErrDuplicateEvent):
			duplicate = true
			return nil
		case errors.Is(err, ErrCommitUncertain):
			commitUncertain = true
			return err
		case err != nil:
			return err
		}

		entry = recorded
		return nil
	})

	if err != nil {
		return uc.fail(ctx, normalized, attempts, err)
	}

	if duplicate {
		log.Info().Msg("duplicate event")
		uc.markSeen(ctx, normalized.EventID)
		return Duplicate()
	}

	uc.markSeen(ctx, normalized.EventID)
	if uc.cache != nil {
		if err := uc.cache.Delete(ctx, SummaryCacheKey); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate summary cache")
		}
	}

	log.Info().
		Int64("sequence", entry.Sequence).
		Str("kind", string(entry.Event.Kind)).
		Str("stream", string(entry.Event.Stream)).
		Int64("gross", entry.Event.GrossAmount).
		Int64("charity", entry.Split.Charity).
		Int64("infrastructure", entry.Split.Infrastructure).
		Int64("founder", entry.Split.Founder).
		Str("hash", entry.Hash).
		Msg("ledger entry recorded")

	return Accepted(entry)
}

// appendOnce runs one transactional attempt.
func (uc *AllocationUseCase) appendOnce(ctx context.Context, normalized *domain.PaymentEvent) (*domain.LedgerEntry, error) {
	// Each attempt works on its own copy so flags never accumulate.
	event := normalized.Normalized()
	now := uc.now()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	accepted, err := uc.dedup.Accept(ctx, tx, event.EventID, now)
	if err != nil {
		return nil, fmt.Errorf("dedup accept: %w", err)
	}
	if !accepted {
		return nil, ErrDuplicateEvent
	}

	split, err := domain.Split(event.GrossAmount, uc.policy)
	if err != nil {
		return nil, Permanent(err)
	}

	overRefund, paid, refunded, err := uc.checkOverRefund(ctx, tx, event)
	if err != nil {
		return nil, err
	}
	if overRefund {
		event.Metadata[domain.MetadataAnomaly] = domain.AnomalyOverRefund
	}

	entry, err := uc.ledger.Append(ctx, tx, event, split, now)
	if err != nil {
		return nil, err
	}

	if err := uc.writeOutbox(ctx, tx, entry, overRefund, paid, refunded); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommitUncertain, err)
	}

	if overRefund {
		uc.logger.Warn().
			Str("event_id", event.EventID).
			Str("correlation_key", event.CorrelationKey()).
			Int64("paid", paid).
			Int64("refunded", refunded).
			Msg("refund exceeds recorded payments")
	}

	return entry, nil
}

// checkOverRefund reports whether a refund pushes cumulative refunds for its
// correlation key above cumulative payments. Refunds without a key are not
// checked.
func (uc *AllocationUseCase) checkOverRefund(ctx context.Context, tx Transaction, event *domain.PaymentEvent) (bool, int64, int64, error) {
	if !event.IsRefund() {
		return false, 0, 0, nil
	}
	key := event.CorrelationKey()
	if key == "" {
		return false, 0, 0, nil
	}

	paid, refunded, err := uc.ledger.CorrelationTotals(ctx, tx, key)
	if err != nil {
		return false, 0, 0, fmt.Errorf("correlation totals: %w", err)
	}
	refunded += event.GrossAmount

	return refunded > paid, paid, refunded, nil
}

func (uc *AllocationUseCase) writeOutbox(ctx context.Context, tx Transaction, entry *domain.LedgerEntry, overRefund bool, paid, refunded int64) error {
	recorded := domain.NewEntryRecordedEvent(entry)
	events := []*domain.OutboxEvent{{
		ID:            uc.idGen.Generate(),
		AggregateID:   entry.Event.EventID,
		AggregateType: domain.AggregateTypeLedgerEntry,
		EventType:     domain.EventTypeEntryRecorded,
		Payload: map[string]any{
			"event_id":       recorded.EventID,
			"kind":           recorded.Kind,
			"stream":         recorded.Stream,
			"provider":       recorded.Provider,
			"gross":          recorded.Gross,
			"charity":        recorded.Charity,
			"infrastructure": recorded.Infrastructure,
			"founder":        recorded.Founder,
			"hash":           recorded.Hash,
			"sequence":       recorded.Sequence,
		},
		CreatedAt: entry.RecordedAt,
	}}

	if overRefund {
		events = append(events, &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   entry.Event.EventID,
			AggregateType: domain.AggregateTypeLedgerEntry,
			EventType:     domain.EventTypeOverRefundFlagged,
			Payload: map[string]any{
				"event_id":        entry.Event.EventID,
				"correlation_key": entry.Event.CorrelationKey(),
				"paid":            domain.MajorUnits(paid),
				"refunded":        domain.MajorUnits(refunded),
				"sequence":        entry.Sequence,
			},
			CreatedAt: entry.RecordedAt,
		})
	}

	for _, e := range events {
		if err := uc.outbox.Create(ctx, tx, e); err != nil {
			return fmt.Errorf("outbox %s: %w", e.EventType, err)
		}
	}
	return nil
}

func (uc *AllocationUseCase) fail(ctx context.Context, event *domain.PaymentEvent, attempts int, err error) Outcome {
	log := uc.logger.With().Str("event_id", event.EventID).Int("attempts", attempts).Logger()

	if ctx.Err() != nil {
		log.Warn().Err(err).Msg("event processing abandoned by caller")
		return Failed(err)
	}

	log.Error().Err(err).Msg("event processing failed, retries exhausted")

	if uc.alerter != nil {
		alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()

		alertErr := uc.alerter.Alert(alertCtx, domain.Alert{
			Severity:   domain.AlertSeverityCritical,
			Title:      "payment event not recorded",
			EventID:    event.EventID,
			Reason:     err.Error(),
			OccurredAt: uc.now(),
		})
		if alertErr != nil {
			log.Error().Err(alertErr).Msg("failed to deliver alert")
		}
	}

	return Failed(err)
}

func (uc *AllocationUseCase) markSeen(ctx context.Context, eventID string) {
	if uc.seen == nil {
		return
	}
	if err := uc.seen.MarkSeen(ctx, eventID, uc.retention); err != nil {
		uc.logger.Warn().Str("event_id", eventID).Err(err).Msg("failed to mark event as seen")
	}
}

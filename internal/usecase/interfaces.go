package usecase

import (
	"context"
	"time"

	"github.com/iho/revledger/internal/domain"
)

// LedgerRepository defines data access for the hash-chained ledger.
type LedgerRepository interface {
	// Append chains a new entry after the current head. Implementations must
	// serialize concurrent appends for the lifetime of tx.
	Append(ctx context.Context, tx Transaction, event *domain.PaymentEvent, split domain.SplitResult, recordedAt time.Time) (*domain.LedgerEntry, error)
	// ReadAll returns every entry in sequence order from a single snapshot.
	ReadAll(ctx context.Context) ([]*domain.LedgerEntry, error)
	// ReadFrom returns up to limit entries starting at sequence from.
	ReadFrom(ctx context.Context, from int64, limit int) ([]*domain.LedgerEntry, error)
	GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error)
	// CorrelationTotals sums gross amounts of payments and refunds recorded
	// under a correlation key.
	CorrelationTotals(ctx context.Context, tx Transaction, key string) (payments, refunds int64, err error)
}

// EventDeduplicator records processed event ids.
type EventDeduplicator interface {
	// Accept returns true the first time eventID is seen. The mark becomes
	// durable only when tx commits.
	Accept(ctx context.Context, tx Transaction, eventID string, seenAt time.Time) (bool, error)
	// Prune removes marks older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// OutboxRepository stores notifications raised by ledger appends.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	// ListForEvent returns the notifications raised while recording eventID.
	ListForEvent(ctx context.Context, eventID string) ([]*domain.OutboxEvent, error)
	// PurgePublished deletes notifications delivered before the cutoff and
	// returns how many were removed.
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier runs operation until it succeeds, returns a permanent error, or
// the attempts are exhausted. Each attempt receives its own context.
type Retrier interface {
	Retry(ctx context.Context, operation func(ctx context.Context) error) error
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SeenCache is an advisory record of event ids that have been committed.
// A miss proves nothing; the transactional deduplicator is authoritative.
type SeenCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request did not produce a replayable response.
	Release(ctx context.Context, key string) error
}

// Alerter notifies operators of conditions that need manual attention.
type Alerter interface {
	Alert(ctx context.Context, alert domain.Alert) error
}

// ArchiveStore persists exported ledger dumps.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (location string, err error)
}

// Metrics records engine and verifier measurements.
type Metrics interface {
	ObserveOutcome(status OutcomeStatus, duration time.Duration)
	IncAppendRetry()
	ObserveVerification(valid bool, entries int64, duration time.Duration)
}

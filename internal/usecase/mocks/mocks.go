package mocks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

// ErrTxDone is returned when a finished memory transaction is reused.
var ErrTxDone = errors.New("transaction already finished")

// MemoryLedger is an in-memory TransactionManager, LedgerRepository,
// EventDeduplicator and OutboxRepository sharing one transactional state.
// Transactions hold a writer lock from Begin until Commit or Rollback, which
// mirrors the head-row lock of the SQL stores.
type MemoryLedger struct {
	writer sync.Mutex
	mu     sync.RWMutex

	entries   []*domain.LedgerEntry
	processed map[string]time.Time
	outbox    []*domain.OutboxEvent

	BeginFunc   func(ctx context.Context) error
	AcceptFunc  func(ctx context.Context, eventID string) error
	AppendFunc  func(ctx context.Context, event *domain.PaymentEvent) error
	ReadAllFunc func(ctx context.Context) ([]*domain.LedgerEntry, error)
	// CommitFunc may fail a commit. When durable is true the staged writes
	// are applied even though an error is returned.
	CommitFunc func(ctx context.Context) (durable bool, err error)
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{processed: make(map[string]time.Time)}
}

type memoryTx struct {
	ledger    *MemoryLedger
	entries   []*domain.LedgerEntry
	processed map[string]time.Time
	outbox    []*domain.OutboxEvent
	done      bool
}

// Begin starts a transaction.
func (m *MemoryLedger) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		if err := m.BeginFunc(ctx); err != nil {
			return nil, err
		}
	}
	m.writer.Lock()
	return &memoryTx{ledger: m, processed: make(map[string]time.Time)}, nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.ledger.writer.Unlock()

	durable, err := true, error(nil)
	if t.ledger.CommitFunc != nil {
		durable, err = t.ledger.CommitFunc(ctx)
	}
	if err != nil && !durable {
		return err
	}

	t.ledger.mu.Lock()
	t.ledger.entries = append(t.ledger.entries, t.entries...)
	for id, at := range t.processed {
		t.ledger.processed[id] = at
	}
	t.ledger.outbox = append(t.ledger.outbox, t.outbox...)
	t.ledger.mu.Unlock()

	return err
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.ledger.writer.Unlock()
	return nil
}

func asMemoryTx(tx usecase.Transaction) (*memoryTx, error) {
	mtx, ok := tx.(*memoryTx)
	if !ok || mtx.done {
		return nil, ErrTxDone
	}
	return mtx, nil
}

// Accept implements usecase.EventDeduplicator.
func (m *MemoryLedger) Accept(ctx context.Context, tx usecase.Transaction, eventID string, seenAt time.Time) (bool, error) {
	if m.AcceptFunc != nil {
		if err := m.AcceptFunc(ctx, eventID); err != nil {
			return false, err
		}
	}
	mtx, err := asMemoryTx(tx)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, committed := m.processed[eventID]
	m.mu.RUnlock()
	if _, staged := mtx.processed[eventID]; committed || staged {
		return false, nil
	}

	mtx.processed[eventID] = seenAt
	return true, nil
}

// Prune implements usecase.EventDeduplicator.
func (m *MemoryLedger) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, at := range m.processed {
		if at.Before(before) {
			delete(m.processed, id)
			n++
		}
	}
	return n, nil
}

// Append implements usecase.LedgerRepository.
func (m *MemoryLedger) Append(ctx context.Context, tx usecase.Transaction, event *domain.PaymentEvent, split domain.SplitResult, recordedAt time.Time) (*domain.LedgerEntry, error) {
	if m.AppendFunc != nil {
		if err := m.AppendFunc(ctx, event); err != nil {
			return nil, err
		}
	}
	mtx, err := asMemoryTx(tx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	all := append(append([]*domain.LedgerEntry{}, m.entries...), mtx.entries...)
	m.mu.RUnlock()

	prior := domain.GenesisHash
	for _, e := range all {
		if e.Event.EventID == event.EventID {
			return nil, usecase.ErrDuplicateEvent
		}
		prior = e.Hash
	}

	entry, err := domain.NewLedgerEntry(int64(len(all)), event, split, prior, recordedAt)
	if err != nil {
		return nil, err
	}
	mtx.entries = append(mtx.entries, entry)
	return copyEntry(entry), nil
}

// ReadAll implements usecase.LedgerRepository.
func (m *MemoryLedger) ReadAll(ctx context.Context) ([]*domain.LedgerEntry, error) {
	if m.ReadAllFunc != nil {
		return m.ReadAllFunc(ctx)
	}
	return m.ReadFrom(ctx, 0, -1)
}

// ReadFrom implements usecase.LedgerRepository. A negative limit reads to the end.
func (m *MemoryLedger) ReadFrom(ctx context.Context, from int64, limit int) ([]*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*domain.LedgerEntry{}
	for _, e := range m.entries {
		if e.Sequence < from {
			continue
		}
		if limit >= 0 && len(out) >= limit {
			break
		}
		out = append(out, copyEntry(e))
	}
	return out, nil
}

// GetByEventID implements usecase.LedgerRepository.
func (m *MemoryLedger) GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.Event.EventID == eventID {
			return copyEntry(e), nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

// CorrelationTotals implements usecase.LedgerRepository.
func (m *MemoryLedger) CorrelationTotals(ctx context.Context, tx usecase.Transaction, key string) (int64, int64, error) {
	mtx, err := asMemoryTx(tx)
	if err != nil {
		return 0, 0, err
	}

	m.mu.RLock()
	all := append(append([]*domain.LedgerEntry{}, m.entries...), mtx.entries...)
	m.mu.RUnlock()

	var payments, refunds int64
	for _, e := range all {
		if e.Event.CorrelationKey() != key {
			continue
		}
		if e.Event.IsRefund() {
			refunds += e.Event.GrossAmount
		} else {
			payments += e.Event.GrossAmount
		}
	}
	return payments, refunds, nil
}

// Create implements usecase.OutboxRepository.
func (m *MemoryLedger) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	mtx, err := asMemoryTx(tx)
	if err != nil {
		return err
	}
	mtx.outbox = append(mtx.outbox, event)
	return nil
}

// GetUnpublished implements usecase.OutboxRepository.
func (m *MemoryLedger) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.OutboxEvent
	for _, e := range m.outbox {
		if !e.Published && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// MarkPublished implements usecase.OutboxRepository.
func (m *MemoryLedger) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.outbox {
		if e.ID == id {
			e.Published = true
			at := publishedAt
			e.PublishedAt = &at
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

// ListForEvent implements usecase.OutboxRepository.
func (m *MemoryLedger) ListForEvent(ctx context.Context, eventID string) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.OutboxEvent
	for _, e := range m.outbox {
		if e.AggregateType == domain.AggregateTypeLedgerEntry && e.AggregateID == eventID {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// PurgePublished implements usecase.OutboxRepository.
func (m *MemoryLedger) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	kept := m.outbox[:0]
	for _, e := range m.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.outbox = kept
	return purged, nil
}

// Entries returns committed entries.
func (m *MemoryLedger) Entries() []*domain.LedgerEntry {
	entries, _ := m.ReadFrom(context.Background(), 0, -1)
	return entries
}

// Outbox returns committed outbox events.
func (m *MemoryLedger) Outbox() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.OutboxEvent{}, m.outbox...)
}

// ProcessedIDs returns committed dedup marks in sorted order.
func (m *MemoryLedger) ProcessedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.processed))
	for id := range m.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tamper mutates a committed entry in place, bypassing the chain.
func (m *MemoryLedger) Tamper(sequence int64, fn func(e *domain.LedgerEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.entries[sequence])
}

func copyEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	out := *e
	out.Event.Metadata = make(map[string]string, len(e.Event.Metadata))
	for k, v := range e.Event.Metadata {
		out.Event.Metadata[k] = v
	}
	return &out
}

// SequentialIDGenerator returns predictable ids.
type SequentialIDGenerator struct {
	mu      sync.Mutex
	counter int
	Prefix  string
}

func NewSequentialIDGenerator() *SequentialIDGenerator {
	return &SequentialIDGenerator{Prefix: "id-"}
}

func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s%d", g.Prefix, g.counter)
}

// StubRetrier retries without sleeping, up to MaxAttempts.
type StubRetrier struct {
	MaxAttempts int
}

func (r *StubRetrier) Retry(ctx context.Context, operation func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = operation(ctx)
		if err == nil {
			return nil
		}
		if usecase.IsPermanent(err) {
			var p *usecase.PermanentError
			errors.As(err, &p)
			return p.Err
		}
	}
	return err
}

// MemoryCache implements usecase.Cache and usecase.SeenCache.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string][]byte

	GetErr error
	SetErr error
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string][]byte)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.SetErr != nil {
		return c.SetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *MemoryCache) Seen(ctx context.Context, eventID string) (bool, error) {
	v, err := c.Get(ctx, "seen:"+eventID)
	return v != nil, err
}

func (c *MemoryCache) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.Set(ctx, "seen:"+eventID, []byte("1"), ttl)
}

// RecordingAlerter keeps every alert it receives.
type RecordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert

	Err error
}

func (a *RecordingAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return a.Err
}

func (a *RecordingAlerter) Alerts() []domain.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Alert{}, a.alerts...)
}

// RecordingMetrics counts observations.
type RecordingMetrics struct {
	mu            sync.Mutex
	Outcomes      map[usecase.OutcomeStatus]int
	Retries       int
	Verifications int
}

func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{Outcomes: make(map[usecase.OutcomeStatus]int)}
}

func (m *RecordingMetrics) ObserveOutcome(status usecase.OutcomeStatus, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[status]++
}

func (m *RecordingMetrics) IncAppendRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Retries++
}

func (m *RecordingMetrics) ObserveVerification(valid bool, entries int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verifications++
}

// IdempotencyStore is an in-memory usecase.IdempotencyStore.
type IdempotencyStore struct {
	mu    sync.Mutex
	store map[string][]byte

	CheckAndSetFunc func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{store: make(map[string][]byte)}
}

func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if s.CheckAndSetFunc != nil {
		return s.CheckAndSetFunc(ctx, key, response, ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.store[key]; ok {
		return true, existing, nil
	}
	s.store[key] = response
	return false, nil, nil
}

func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = response
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	return nil
}

// Get returns the stored value for key.
func (s *IdempotencyStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.store[key]
	return v, ok
}

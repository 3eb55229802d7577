package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

var ledgerColumns = []string{
	"sequence", "event_id", "kind", "stream", "provider", "gross_amount", "event_timestamp",
	"metadata", "correlation_key", "charity", "infrastructure", "founder",
	"previous_hash", "hash", "recorded_at",
}

func testEvent() *domain.PaymentEvent {
	return &domain.PaymentEvent{
		EventID:     "evt_1",
		Kind:        domain.EventKindPayment,
		Stream:      domain.StreamMerch,
		Provider:    domain.ProviderStripe,
		GrossAmount: 1000,
		Timestamp:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Metadata:    map[string]string{"order_id": "ord_9"},
	}
}

func beginMockTx(t *testing.T, pool pgxmock.PgxPoolIface) usecase.Transaction {
	t.Helper()
	pool.ExpectBegin()
	tx, err := newTxManagerWithPool(pool).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	return tx
}

func TestLedgerAppendChainsAfterHead(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)
	repo := newLedgerRepositoryWithDB(pool)

	event := testEvent()
	split := domain.SplitResult{Charity: 500, Infrastructure: 300, Founder: 200}
	recordedAt := time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC)

	pool.ExpectQuery(regexp.QuoteMeta("FROM ledger_head WHERE id = 1 FOR UPDATE")).
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence", "last_hash"}).AddRow(int64(6), "abc123"))
	pool.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(
			int64(7), "evt_1", "payment", "merch", "stripe", int64(1000),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "ord_9",
			int64(500), int64(300), int64(200),
			"abc123", pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(regexp.QuoteMeta("UPDATE ledger_head SET last_sequence")).
		WithArgs(int64(7), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	entry, err := repo.Append(context.Background(), tx, event, split, recordedAt)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if entry.Sequence != 7 || entry.PreviousHash != "abc123" {
		t.Fatalf("expected entry 7 after abc123, got %d after %s", entry.Sequence, entry.PreviousHash)
	}

	want, err := domain.ComputeHash(7, event, split, "abc123")
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	if entry.Hash != want {
		t.Fatalf("expected hash %s, got %s", want, entry.Hash)
	}

	assertExpectations(t, pool)
}

func TestLedgerAppendMapsEventIDConflictToDuplicate(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)
	repo := newLedgerRepositoryWithDB(pool)

	pool.ExpectQuery(regexp.QuoteMeta("FROM ledger_head")).
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence", "last_hash"}).AddRow(int64(-1), domain.GenesisHash))
	pool.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: eventIDIndex})

	_, err := repo.Append(context.Background(), tx, testEvent(), domain.SplitResult{Charity: 500, Infrastructure: 300, Founder: 200}, time.Now())
	if !errors.Is(err, usecase.ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}

	assertExpectations(t, pool)
}

func TestLedgerAppendPropagatesLockError(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)
	repo := newLedgerRepositoryWithDB(pool)

	lockErr := errors.New("connection reset")
	pool.ExpectQuery(regexp.QuoteMeta("FROM ledger_head")).WillReturnError(lockErr)

	_, err := repo.Append(context.Background(), tx, testEvent(), domain.SplitResult{}, time.Now())
	if !errors.Is(err, lockErr) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if usecase.IsPermanent(err) {
		t.Fatalf("lock errors must stay retryable")
	}
}

func TestLedgerReadAllDecodesRows(t *testing.T) {
	pool := newMockPool(t)
	repo := newLedgerRepositoryWithDB(pool)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pool.ExpectQuery(regexp.QuoteMeta("ORDER BY sequence")).
		WillReturnRows(pgxmock.NewRows(ledgerColumns).
			AddRow(int64(0), "evt_1", "payment", "merch", "stripe", int64(1000), ts,
				[]byte(`{"order_id":"ord_9"}`), "ord_9", int64(500), int64(300), int64(200),
				domain.GenesisHash, "h0", ts).
			AddRow(int64(1), "evt_2", "refund", "merch", "square", int64(400), ts,
				[]byte(`{}`), "", int64(200), int64(120), int64(80),
				"h0", "h1", ts))

	entries, err := repo.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read all failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Event.Metadata["order_id"] != "ord_9" {
		t.Fatalf("expected metadata to decode, got %v", entries[0].Event.Metadata)
	}
	if entries[1].Event.Kind != domain.EventKindRefund || entries[1].PreviousHash != "h0" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	assertExpectations(t, pool)
}

func TestLedgerReadFromPassesBounds(t *testing.T) {
	pool := newMockPool(t)
	repo := newLedgerRepositoryWithDB(pool)

	pool.ExpectQuery(regexp.QuoteMeta("WHERE sequence >= $1")).
		WithArgs(int64(10), int32(5)).
		WillReturnRows(pgxmock.NewRows(ledgerColumns))

	entries, err := repo.ReadFrom(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("read from failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}

	assertExpectations(t, pool)
}

func TestLedgerGetByEventIDNotFound(t *testing.T) {
	pool := newMockPool(t)
	repo := newLedgerRepositoryWithDB(pool)

	pool.ExpectQuery(regexp.QuoteMeta("WHERE event_id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEventID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLedgerCorrelationTotals(t *testing.T) {
	pool := newMockPool(t)
	repo := newLedgerRepositoryWithDB(pool)

	pool.ExpectQuery(regexp.QuoteMeta("WHERE correlation_key = $1")).
		WithArgs("ord_9").
		WillReturnRows(pgxmock.NewRows([]string{"payments", "refunds"}).AddRow(int64(1000), int64(250)))

	payments, refunds, err := repo.CorrelationTotals(context.Background(), nil, "ord_9")
	if err != nil {
		t.Fatalf("correlation totals failed: %v", err)
	}
	if payments != 1000 || refunds != 250 {
		t.Fatalf("expected 1000/250, got %d/%d", payments, refunds)
	}

	assertExpectations(t, pool)
}

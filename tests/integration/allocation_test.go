package integration

import (
	"context"
	"testing"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
	"github.com/iho/revledger/tests/testutil"
)

func TestAllocation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	engine := testutil.NewEngine(t, testDB)

	t.Run("first entry chains from genesis", func(t *testing.T) {
		testDB.TruncateAll(ctx)

		outcome := engine.Allocation.Process(ctx, testutil.NewPayment(1001, nil))
		if outcome.Status != usecase.OutcomeAccepted {
			t.Fatalf("expected accepted, got %s (%s)", outcome.Status, outcome.Reason)
		}

		entry := outcome.Entry
		if entry.Sequence != 0 {
			t.Errorf("expected sequence 0, got %d", entry.Sequence)
		}
		if entry.PreviousHash != domain.GenesisHash {
			t.Errorf("expected genesis previous hash, got %s", entry.PreviousHash)
		}

		want := domain.SplitResult{Charity: 500, Infrastructure: 300, Founder: 201}
		if entry.Split != want {
			t.Errorf("expected split %+v, got %+v", want, entry.Split)
		}

		stored, err := engine.Ledger.GetByEventID(ctx, entry.Event.EventID)
		if err != nil {
			t.Fatalf("failed to read stored entry: %v", err)
		}
		if stored.Hash != entry.Hash {
			t.Errorf("stored hash %s differs from returned hash %s", stored.Hash, entry.Hash)
		}
	})

	t.Run("entries chain in order", func(t *testing.T) {
		testDB.TruncateAll(ctx)

		previous := domain.GenesisHash
		for i := range 5 {
			outcome := engine.Allocation.Process(ctx, testutil.NewPayment(int64(100*(i+1)), nil))
			if outcome.Status != usecase.OutcomeAccepted {
				t.Fatalf("event %d: expected accepted, got %s", i, outcome.Status)
			}
			if outcome.Entry.Sequence != int64(i) {
				t.Fatalf("event %d: expected sequence %d, got %d", i, i, outcome.Entry.Sequence)
			}
			if outcome.Entry.PreviousHash != previous {
				t.Fatalf("event %d: previous hash does not link to the prior entry", i)
			}
			previous = outcome.Entry.Hash
		}

		result, err := engine.Verifier.Verify(ctx)
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if !result.Valid || result.EntryCount != 5 {
			t.Fatalf("expected valid chain of 5, got valid=%v count=%d", result.Valid, result.EntryCount)
		}
		if result.Totals.Gross != 1500 {
			t.Errorf("expected gross 1500, got %d", result.Totals.Gross)
		}
	})

	t.Run("duplicate event is not recorded twice", func(t *testing.T) {
		testDB.TruncateAll(ctx)

		event := testutil.NewPayment(2500, nil)

		first := engine.Allocation.Process(ctx, event)
		second := engine.Allocation.Process(ctx, event)

		if first.Status != usecase.OutcomeAccepted {
			t.Fatalf("expected first delivery accepted, got %s", first.Status)
		}
		if second.Status != usecase.OutcomeDuplicate {
			t.Fatalf("expected redelivery duplicate, got %s", second.Status)
		}

		entries, err := engine.Ledger.ReadAll(ctx)
		if err != nil {
			t.Fatalf("failed to read ledger: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
	})

	t.Run("invalid event is rejected without touching storage", func(t *testing.T) {
		testDB.TruncateAll(ctx)

		event := testutil.NewPayment(100, nil)
		event.Stream = "gambling"

		outcome := engine.Allocation.Process(ctx, event)
		if outcome.Status != usecase.OutcomeRejected {
			t.Fatalf("expected rejected, got %s", outcome.Status)
		}

		// A corrected event with the same id is still accepted.
		event.Stream = domain.StreamDating
		if outcome := engine.Allocation.Process(ctx, event); outcome.Status != usecase.OutcomeAccepted {
			t.Fatalf("expected corrected event accepted, got %s", outcome.Status)
		}
	})

	t.Run("over-refund is flagged and recorded", func(t *testing.T) {
		testDB.TruncateAll(ctx)

		meta := map[string]string{domain.MetadataOrderID: "order-7"}

		if o := engine.Allocation.Process(ctx, testutil.NewPayment(1000, meta)); o.Status != usecase.OutcomeAccepted {
			t.Fatalf("payment not accepted: %s", o.Status)
		}
		partial := engine.Allocation.Process(ctx, testutil.NewRefund(600, meta))
		if partial.Status != usecase.OutcomeAccepted {
			t.Fatalf("partial refund not accepted: %s", partial.Status)
		}
		if partial.Entry.Event.Metadata[domain.MetadataAnomaly] != "" {
			t.Fatalf("partial refund must not be flagged")
		}

		over := engine.Allocation.Process(ctx, testutil.NewRefund(600, meta))
		if over.Status != usecase.OutcomeAccepted {
			t.Fatalf("over-refund must still be recorded, got %s", over.Status)
		}
		if over.Entry.Event.Metadata[domain.MetadataAnomaly] != domain.AnomalyOverRefund {
			t.Fatalf("expected over_refund anomaly, got %v", over.Entry.Event.Metadata)
		}

		result, err := engine.Verifier.Verify(ctx)
		if err != nil || !result.Valid {
			t.Fatalf("expected flagged entry to verify, got %v %v", result, err)
		}
		if result.Totals.Refunded != 1200 {
			t.Errorf("expected 1200 refunded, got %d", result.Totals.Refunded)
		}
	})
}

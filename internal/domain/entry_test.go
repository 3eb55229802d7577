package domain

import (
	"testing"
	"time"
)

func sampleEvent() *PaymentEvent {
	return &PaymentEvent{
		EventID:     "evt_1",
		Kind:        EventKindPayment,
		Stream:      StreamMerch,
		GrossAmount: 10000,
		Provider:    ProviderStripe,
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Metadata:    map[string]string{"order_id": "ord_9"},
	}
}

var sampleSplit = SplitResult{Charity: 5000, Infrastructure: 3000, Founder: 2000}

func TestCanonicalBytes_Golden(t *testing.T) {
	t.Parallel()

	got, err := CanonicalBytes(0, sampleEvent(), sampleSplit, GenesisHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"sequence":0,"event":{"event_id":"evt_1","kind":"payment","stream":"merch","gross_amount":10000,"provider":"stripe","timestamp":"2024-05-01T12:00:00Z","metadata":{"order_id":"ord_9"}},"split":{"charity":5000,"infrastructure":3000,"founder":2000},"previous_hash":"GENESIS"}`
	if string(got) != want {
		t.Fatalf("canonical encoding mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestComputeHash_Golden(t *testing.T) {
	t.Parallel()

	hash, err := ComputeHash(0, sampleEvent(), sampleSplit, GenesisHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const want = "80d07afdbbe82b860da42be9c099fb8cd6156c954c4ff2358c0289a428ec9118"
	if hash != want {
		t.Fatalf("hash = %s, want %s", hash, want)
	}
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	t.Parallel()

	base, _ := ComputeHash(0, sampleEvent(), sampleSplit, GenesisHash)

	mutations := map[string]func(e *PaymentEvent, s *SplitResult, seq *int64, prev *string){
		"event id":  func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.EventID = "evt_2" },
		"kind":      func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.Kind = EventKindRefund },
		"stream":    func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.Stream = StreamDating },
		"gross":     func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.GrossAmount = 10001 },
		"provider":  func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.Provider = ProviderSquare },
		"timestamp": func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"metadata":  func(e *PaymentEvent, _ *SplitResult, _ *int64, _ *string) { e.Metadata["order_id"] = "ord_10" },
		"split":     func(_ *PaymentEvent, s *SplitResult, _ *int64, _ *string) { s.Charity--; s.Founder++ },
		"sequence":  func(_ *PaymentEvent, _ *SplitResult, seq *int64, _ *string) { *seq = 1 },
		"previous":  func(_ *PaymentEvent, _ *SplitResult, _ *int64, prev *string) { *prev = "abc" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			e := sampleEvent()
			s := sampleSplit
			seq := int64(0)
			prev := GenesisHash
			mutate(e, &s, &seq, &prev)

			got, err := ComputeHash(seq, e, s, prev)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == base {
				t.Fatalf("hash did not change when %s changed", name)
			}
		})
	}
}

func TestComputeHash_MetadataOrderIndependent(t *testing.T) {
	t.Parallel()

	a := sampleEvent()
	a.Metadata = map[string]string{"a": "1", "b": "2", "c": "3"}
	b := sampleEvent()
	b.Metadata = map[string]string{"c": "3", "a": "1", "b": "2"}

	ha, _ := ComputeHash(3, a, sampleSplit, "prev")
	hb, _ := ComputeHash(3, b, sampleSplit, "prev")
	if ha != hb {
		t.Fatalf("metadata insertion order changed the hash")
	}
}

func TestComputeHash_NilAndEmptyMetadataMatch(t *testing.T) {
	t.Parallel()

	a := sampleEvent()
	a.Metadata = nil
	b := sampleEvent()
	b.Metadata = map[string]string{}

	ha, _ := ComputeHash(0, a, sampleSplit, GenesisHash)
	hb, _ := ComputeHash(0, b, sampleSplit, GenesisHash)
	if ha != hb {
		t.Fatalf("nil and empty metadata hashed differently")
	}
}

func TestNewLedgerEntry(t *testing.T) {
	t.Parallel()

	event := sampleEvent()
	event.Timestamp = time.Date(2024, 5, 1, 14, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))

	entry, err := NewLedgerEntry(0, event, sampleSplit, GenesisHash, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.Event.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", entry.Event.Timestamp.Location())
	}
	if entry.Event.Timestamp.Nanosecond() != 123456000 {
		t.Fatalf("expected microsecond truncation, got %d ns", entry.Event.Timestamp.Nanosecond())
	}

	recomputed, err := entry.RecomputeHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recomputed != entry.Hash {
		t.Fatalf("recomputed hash %s != stored %s", recomputed, entry.Hash)
	}

	// The caller's event must not be modified.
	if event.Timestamp.Nanosecond() != 123456789 {
		t.Fatalf("input event was mutated")
	}
	entry.Event.Metadata["extra"] = "x"
	if _, ok := event.Metadata["extra"]; ok {
		t.Fatalf("entry shares metadata map with input event")
	}
}

func TestNewLedgerEntry_Chains(t *testing.T) {
	t.Parallel()

	first, _ := NewLedgerEntry(0, sampleEvent(), sampleSplit, GenesisHash, time.Now())

	second := sampleEvent()
	second.EventID = "evt_2"
	next, _ := NewLedgerEntry(1, second, sampleSplit, first.Hash, time.Now())

	if next.PreviousHash != first.Hash {
		t.Fatalf("entry 1 does not link to entry 0")
	}
	if ExpectedPreviousHash(0, "ignored") != GenesisHash {
		t.Fatalf("sequence 0 must expect the genesis sentinel")
	}
	if ExpectedPreviousHash(1, first.Hash) != first.Hash {
		t.Fatalf("sequence 1 must expect the prior hash")
	}
}

func TestTotals_Apply(t *testing.T) {
	t.Parallel()

	totals := NewTotals()

	payment, _ := NewLedgerEntry(0, sampleEvent(), sampleSplit, GenesisHash, time.Now())
	totals.Apply(payment)

	refundEvent := sampleEvent()
	refundEvent.EventID = "re_1"
	refundEvent.Kind = EventKindRefund
	refundEvent.GrossAmount = 1000
	refund, _ := NewLedgerEntry(1, refundEvent, SplitResult{Charity: 500, Infrastructure: 300, Founder: 200}, payment.Hash, time.Now())
	totals.Apply(refund)

	if totals.Gross != 9000 || totals.Charity != 4500 || totals.Infrastructure != 2700 || totals.Founder != 1800 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.Refunded != 1000 {
		t.Fatalf("expected refunded 1000, got %d", totals.Refunded)
	}
	if totals.ByStream[StreamMerch] != 9000 {
		t.Fatalf("expected merch 9000, got %d", totals.ByStream[StreamMerch])
	}
}

func TestMajorUnitsAndShare(t *testing.T) {
	t.Parallel()

	if got := MajorUnits(1050); got != "10.50" {
		t.Fatalf("MajorUnits(1050) = %s", got)
	}
	if got := MajorUnits(-7); got != "-0.07" {
		t.Fatalf("MajorUnits(-7) = %s", got)
	}
	if got := Share(50, 200); got != "25.00" {
		t.Fatalf("Share(50, 200) = %s", got)
	}
	if got := Share(1, 0); got != "0.00" {
		t.Fatalf("Share(1, 0) = %s", got)
	}
}

package dto

import (
	"strings"
	"testing"
	"time"

	"github.com/iho/revledger/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func TestPaymentEventRequest_Validate(t *testing.T) {
	valid := PaymentEventRequest{
		EventID:     "evt_1",
		Kind:        "payment",
		Stream:      "merch",
		Provider:    "stripe",
		GrossAmount: int64Ptr(0),
		Timestamp:   time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name    string
		mutate  func(r *PaymentEventRequest)
		wantErr string
	}{
		{name: "valid zero amount", mutate: func(r *PaymentEventRequest) {}},
		{name: "missing event id", mutate: func(r *PaymentEventRequest) { r.EventID = "" }, wantErr: "EventID"},
		{name: "missing amount", mutate: func(r *PaymentEventRequest) { r.GrossAmount = nil }, wantErr: "GrossAmount"},
		{name: "missing kind", mutate: func(r *PaymentEventRequest) { r.Kind = "" }, wantErr: "Kind"},
		// Unknown enumerations pass shape checks; the engine rejects them.
		{name: "unknown provider passes", mutate: func(r *PaymentEventRequest) { r.Provider = "paypal" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPaymentEventRequest_ToDomain(t *testing.T) {
	ts := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	req := &PaymentEventRequest{
		EventID:     "evt_1",
		Kind:        "refund",
		Stream:      "dating",
		Provider:    "square",
		GrossAmount: int64Ptr(1050),
		Timestamp:   ts,
		Metadata:    map[string]string{"order_id": "o-1"},
	}

	got := req.ToDomain()
	if got.EventID != "evt_1" || got.Kind != domain.EventKindRefund || got.Stream != domain.StreamDating ||
		got.Provider != domain.ProviderSquare || got.GrossAmount != 1050 || !got.Timestamp.Equal(ts) {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.CorrelationKey() != "o-1" {
		t.Fatalf("expected metadata to carry over, got %v", got.Metadata)
	}
}

func TestReplayRequest_Validate(t *testing.T) {
	if err := (&ReplayRequest{}).Validate(); err == nil {
		t.Fatalf("expected empty replay to fail validation")
	}

	req := &ReplayRequest{Events: []PaymentEventRequest{{EventID: "evt_1"}}}
	err := req.Validate()
	if err == nil || !strings.Contains(err.Error(), "Events[0]") {
		t.Fatalf("expected nested validation error, got %v", err)
	}

	req.Events[0] = PaymentEventRequest{EventID: "evt_1", Kind: "payment", Stream: "merch", Provider: "stripe", GrossAmount: int64Ptr(5)}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events := req.ToDomain(); len(events) != 1 || events[0].GrossAmount != 5 {
		t.Fatalf("unexpected conversion: %+v", events)
	}
}

package domain

import "time"

// Event types
const (
	EventTypeEntryRecorded     = "ledger.entry_recorded"
	EventTypeOverRefundFlagged = "ledger.over_refund_flagged"
)

// Aggregate types
const (
	AggregateTypeLedgerEntry = "ledger_entry"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// EntryRecordedEvent payload
type EntryRecordedEvent struct {
	EventID        string `json:"event_id"`
	Kind           string `json:"kind"`
	Stream         string `json:"stream"`
	Provider       string `json:"provider"`
	Gross          string `json:"gross"`
	Charity        string `json:"charity"`
	Infrastructure string `json:"infrastructure"`
	Founder        string `json:"founder"`
	Hash           string `json:"hash"`
	Sequence       int64  `json:"sequence"`
}

// OverRefundFlaggedEvent payload
type OverRefundFlaggedEvent struct {
	EventID        string `json:"event_id"`
	CorrelationKey string `json:"correlation_key"`
	Paid           string `json:"paid"`
	Refunded       string `json:"refunded"`
	Sequence       int64  `json:"sequence"`
}

// NewEntryRecordedEvent builds the payload announced after an append.
func NewEntryRecordedEvent(e *LedgerEntry) EntryRecordedEvent {
	return EntryRecordedEvent{
		EventID:        e.Event.EventID,
		Kind:           string(e.Event.Kind),
		Stream:         string(e.Event.Stream),
		Provider:       string(e.Event.Provider),
		Gross:          MajorUnits(e.Event.GrossAmount),
		Charity:        MajorUnits(e.Split.Charity),
		Infrastructure: MajorUnits(e.Split.Infrastructure),
		Founder:        MajorUnits(e.Split.Founder),
		Hash:           e.Hash,
		Sequence:       e.Sequence,
	}
}

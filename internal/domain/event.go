package domain

import (
	"time"
)

// EventKind distinguishes money coming in from money being reversed.
type EventKind string

const (
	EventKindPayment EventKind = "payment"
	EventKindRefund  EventKind = "refund"
)

// IsValid reports whether the kind is known.
func (k EventKind) IsValid() bool {
	return k == EventKindPayment || k == EventKindRefund
}

// Stream tags the revenue source. It is informational only and never
// affects split percentages.
type Stream string

const (
	StreamMerch        Stream = "merch"
	StreamSubscription Stream = "subscription"
	StreamDating       Stream = "dating"
	StreamOther        Stream = "other"
)

var validStreams = map[Stream]bool{
	StreamMerch:        true,
	StreamSubscription: true,
	StreamDating:       true,
	StreamOther:        true,
}

// IsValid reports whether the stream is known.
func (s Stream) IsValid() bool {
	return validStreams[s]
}

// Provider is the payment provider that reported the event.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderSquare Provider = "square"
)

// IsValid reports whether the provider is known.
func (p Provider) IsValid() bool {
	return p == ProviderStripe || p == ProviderSquare
}

// Metadata keys with meaning to the ledger. All other keys are passed through.
const (
	MetadataCorrelationID = "correlation_id"
	MetadataOrderID       = "order_id"
	MetadataPaymentID     = "payment_id"
	MetadataAnomaly       = "anomaly"

	AnomalyOverRefund = "over_refund"
)

// correlationKeys lists metadata keys that tie a refund to its payment, in
// order of preference.
var correlationKeys = []string{MetadataCorrelationID, MetadataOrderID, MetadataPaymentID}

// PaymentEvent is the normalized representation of a verified provider
// notification.
type PaymentEvent struct {
	Timestamp   time.Time
	Metadata    map[string]string
	EventID     string
	Kind        EventKind
	Stream      Stream
	Provider    Provider
	GrossAmount int64
}

// CorrelationKey returns the key used to match refunds against payments, or
// an empty string when the event carries none.
func (e *PaymentEvent) CorrelationKey() string {
	for _, k := range correlationKeys {
		if v := e.Metadata[k]; v != "" {
			return v
		}
	}
	return ""
}

// IsRefund reports whether the event reverses money.
func (e *PaymentEvent) IsRefund() bool {
	return e.Kind == EventKindRefund
}

// Normalized returns a copy with UTC microsecond timestamps and an owned
// metadata map. Stored timestamps have microsecond precision, so hashing the
// normalized form keeps hashes reproducible after a round trip.
func (e *PaymentEvent) Normalized() *PaymentEvent {
	out := *e
	out.Timestamp = NormalizeTime(e.Timestamp)
	out.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// NormalizeTime truncates t to microseconds in UTC.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

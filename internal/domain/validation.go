package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation constants
const (
	MaxEventIDLength = 255
	MaxMetadataSize  = 10240 // 10KB
	// MaxGrossAmount caps a single event at ten trillion minor units.
	MaxGrossAmount int64 = 1_000_000_000_000_000
)

// ValidateEventID validates a provider event identifier.
func ValidateEventID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: event id cannot be empty", ErrInvalidEventID)
	}

	if len(id) > MaxEventIDLength {
		return fmt.Errorf("%w: event id exceeds %d characters", ErrInvalidEventID, MaxEventIDLength)
	}

	if err := validateText(id); err != nil {
		return fmt.Errorf("%w: event id: %w", ErrInvalidEventID, err)
	}

	return nil
}

// validateText accepts strings that survive a JSON round trip byte for byte
// and that Postgres TEXT and JSONB columns can store.
func validateText(s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidText
	}
	if strings.ContainsRune(s, 0) {
		return ErrInvalidText
	}
	return nil
}

// ValidateGrossAmount validates a gross amount in minor units.
func ValidateGrossAmount(amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}

	if amount > MaxGrossAmount {
		return fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, MaxGrossAmount)
	}

	return nil
}

// ValidateMetadata checks size, encoding and reserved keys. The anomaly key
// is only ever set by the ledger itself.
func ValidateMetadata(metadata map[string]string) error {
	size := 0
	for k, v := range metadata {
		size += len(k) + len(v)

		if k == MetadataAnomaly {
			return fmt.Errorf("%w: %q", ErrReservedMetadata, k)
		}
		if err := validateText(k); err != nil {
			return fmt.Errorf("metadata key %q: %w", k, err)
		}
		if err := validateText(v); err != nil {
			return fmt.Errorf("metadata value of %q: %w", k, err)
		}
	}

	if size > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrMetadataTooLarge, size, MaxMetadataSize)
	}

	return nil
}

// Validate checks every required field of the event. It has no side effects.
func (e *PaymentEvent) Validate() error {
	if err := ValidateEventID(e.EventID); err != nil {
		return err
	}

	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}

	if !e.Stream.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStream, e.Stream)
	}

	if !e.Provider.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, e.Provider)
	}

	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}

	if err := ValidateGrossAmount(e.GrossAmount); err != nil {
		return err
	}

	return ValidateMetadata(e.Metadata)
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit int, from int64) (int, int64) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if from < 0 {
		from = 0
	}

	return limit, from
}

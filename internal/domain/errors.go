package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every input validation error.
	ErrValidation = errors.New("validation failed")

	// Event errors
	ErrInvalidEventID   = fmt.Errorf("%w: invalid event id", ErrValidation)
	ErrInvalidKind      = fmt.Errorf("%w: invalid event kind", ErrValidation)
	ErrInvalidStream    = fmt.Errorf("%w: invalid revenue stream", ErrValidation)
	ErrInvalidProvider  = fmt.Errorf("%w: invalid provider", ErrValidation)
	ErrMissingTimestamp = fmt.Errorf("%w: event timestamp is required", ErrValidation)
	ErrNegativeAmount   = fmt.Errorf("%w: amount must not be negative", ErrValidation)
	ErrAmountTooLarge   = fmt.Errorf("%w: amount exceeds maximum allowed", ErrValidation)
	ErrMetadataTooLarge = fmt.Errorf("%w: metadata size exceeds limit", ErrValidation)
	ErrInvalidText      = fmt.Errorf("%w: text must be valid UTF-8 without NUL characters", ErrValidation)
	ErrReservedMetadata = fmt.Errorf("%w: metadata key is reserved", ErrValidation)

	// Policy errors
	ErrInvalidPolicy = errors.New("split percentages must be between 0 and 100 and sum to 100")

	// Ledger errors
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrIntegrityViolation = errors.New("ledger integrity violation")
)

// IntegrityError pinpoints the first entry at which the chain stops verifying.
type IntegrityError struct {
	Sequence int64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation at sequence %d: %s", e.Sequence, e.Reason)
}

// Unwrap lets errors.Is match ErrIntegrityViolation.
func (e *IntegrityError) Unwrap() error {
	return ErrIntegrityViolation
}

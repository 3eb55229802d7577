package usecase

import (
	"errors"

	"github.com/iho/revledger/internal/domain"
)

var (
	// ErrDuplicateEvent is returned by stores when an event id is already recorded.
	ErrDuplicateEvent = errors.New("event already recorded")

	// ErrCommitUncertain wraps a commit error after which the write may or
	// may not be durable.
	ErrCommitUncertain = errors.New("commit outcome unknown")
)

// OutcomeStatus is the result class of processing one event.
type OutcomeStatus string

const (
	OutcomeAccepted  OutcomeStatus = "accepted"
	OutcomeDuplicate OutcomeStatus = "duplicate"
	OutcomeRejected  OutcomeStatus = "rejected"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome reports what happened to an event. Entry is set only when the
// event was accepted; Reason only when it was rejected or failed.
type Outcome struct {
	Entry  *domain.LedgerEntry
	Err    error
	Status OutcomeStatus
	Reason string
}

// Accepted returns an accepted outcome.
func Accepted(entry *domain.LedgerEntry) Outcome {
	return Outcome{Status: OutcomeAccepted, Entry: entry}
}

// Duplicate returns a duplicate outcome.
func Duplicate() Outcome {
	return Outcome{Status: OutcomeDuplicate}
}

// Rejected returns a rejected outcome for an invalid event.
func Rejected(err error) Outcome {
	return Outcome{Status: OutcomeRejected, Reason: err.Error(), Err: err}
}

// Failed returns a failed outcome after retries were exhausted.
func Failed(err error) Outcome {
	return Outcome{Status: OutcomeFailed, Reason: err.Error(), Err: err}
}

// Acknowledge reports whether the provider should treat delivery as done.
func (o Outcome) Acknowledge() bool {
	return o.Status == OutcomeAccepted || o.Status == OutcomeDuplicate
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that a Retrier gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iho/revledger/internal/domain"
)

// MaxReplayEvents bounds a single replay request.
const MaxReplayEvents = 1000

var validate = validator.New()

// PaymentEventRequest is a normalized provider event submitted for
// allocation. Field shape is checked here; ledger rules are enforced by the
// engine so that bad values come back as rejected outcomes.
type PaymentEventRequest struct {
	EventID     string            `json:"event_id"     validate:"required"`
	Kind        string            `json:"kind"         validate:"required"`
	Stream      string            `json:"stream"       validate:"required"`
	Provider    string            `json:"provider"     validate:"required"`
	GrossAmount *int64            `json:"gross_amount" validate:"required"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks that every required field is present.
func (r *PaymentEventRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// ToDomain converts the request to a payment event.
func (r *PaymentEventRequest) ToDomain() *domain.PaymentEvent {
	var gross int64
	if r.GrossAmount != nil {
		gross = *r.GrossAmount
	}
	return &domain.PaymentEvent{
		EventID:     r.EventID,
		Kind:        domain.EventKind(r.Kind),
		Stream:      domain.Stream(r.Stream),
		Provider:    domain.Provider(r.Provider),
		GrossAmount: gross,
		Timestamp:   r.Timestamp,
		Metadata:    r.Metadata,
	}
}

// ReplayRequest asks for events to be processed again, in order.
type ReplayRequest struct {
	Events []PaymentEventRequest `json:"events" validate:"required,min=1,max=1000,dive"`
}

// Validate checks the batch and every event in it.
func (r *ReplayRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// ToDomain converts the batch to payment events.
func (r *ReplayRequest) ToDomain() []*domain.PaymentEvent {
	events := make([]*domain.PaymentEvent, len(r.Events))
	for i := range r.Events {
		events[i] = r.Events[i].ToDomain()
	}
	return events
}

// validationError flattens validator output into one readable error.
func validationError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

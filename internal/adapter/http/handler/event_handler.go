package handler

import (
	"context"
	"net/http"

	"github.com/iho/revledger/internal/adapter/http/dto"
	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

// EventProcessor allocates payment events.
type EventProcessor interface {
	Process(ctx context.Context, event *domain.PaymentEvent) usecase.Outcome
	Replay(ctx context.Context, events []*domain.PaymentEvent) []usecase.Outcome
}

// EventHandler handles payment event intake.
type EventHandler struct {
	processor EventProcessor
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(processor EventProcessor) *EventHandler {
	return &EventHandler{processor: processor}
}

// Create submits one normalized event. Providers should retry on 503 and
// treat 200 and 201 as delivered.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.PaymentEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	outcome := h.processor.Process(r.Context(), req.ToDomain())
	status := outcomeStatus(outcome)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	writeJSON(w, status, dto.OutcomeFromUseCase(req.EventID, outcome))
}

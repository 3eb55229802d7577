package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/adapter/http/dto"
	"github.com/iho/revledger/internal/adapter/http/middleware"
	"github.com/iho/revledger/internal/infrastructure/logger"
	"github.com/iho/revledger/internal/usecase"
)

// Exporter uploads verified ledger archives.
type Exporter interface {
	Export(ctx context.Context) (*usecase.ExportResult, error)
}

// AdminHandler handles operator actions.
type AdminHandler struct {
	processor EventProcessor
	exporter  Exporter
	logger    zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(processor EventProcessor, exporter Exporter, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		processor: processor,
		exporter:  exporter,
		logger:    log.With().Str("component", "admin").Logger(),
	}
}

// Replay reprocesses a batch of events in order. Events already recorded
// come back as duplicates, so a replay is always safe to repeat.
func (h *AdminHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req dto.ReplayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	outcomes := h.processor.Replay(r.Context(), req.ToDomain())

	resp := dto.ReplayResponse{Outcomes: make([]*dto.OutcomeResponse, len(outcomes))}
	for i, o := range outcomes {
		resp.Outcomes[i] = dto.OutcomeFromUseCase(req.Events[i].EventID, o)
		switch o.Status {
		case usecase.OutcomeAccepted:
			resp.Accepted++
		case usecase.OutcomeFailed:
			resp.Failed++
		}
	}

	log := logger.FromContext(r.Context(), h.logger)
	if principal, ok := middleware.PrincipalFromContext(r.Context()); ok {
		log = log.With().Str("operator", principal.Subject).Logger()
	}
	log.Info().
		Int("events", len(outcomes)).
		Int("accepted", resp.Accepted).
		Int("failed", resp.Failed).
		Msg("replay completed")

	writeJSON(w, http.StatusOK, resp)
}

// Export uploads a verified snapshot of the chain.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	result, err := h.exporter.Export(r.Context())
	if err != nil {
		writeError(w, mapDomainError(err), "failed to export ledger", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/iho/revledger/internal/adapter/http/dto"
	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

// LedgerReader reads the stored chain.
type LedgerReader interface {
	ReadAll(ctx context.Context) ([]*domain.LedgerEntry, error)
	ReadFrom(ctx context.Context, from int64, limit int) ([]*domain.LedgerEntry, error)
}

// ChainVerifier verifies and audits the chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (*usecase.VerifyResult, error)
	Audit(ctx context.Context, policy domain.SplitPolicy) (*usecase.AuditReport, error)
}

// SummaryService computes aggregate totals.
type SummaryService interface {
	Summary(ctx context.Context) (*usecase.Summary, error)
}

// LedgerHandler serves the read side of the ledger.
type LedgerHandler struct {
	reader   LedgerReader
	verifier ChainVerifier
	summary  SummaryService
	policy   domain.SplitPolicy
}

// NewLedgerHandler creates a new LedgerHandler. policy is the split policy
// audits compare stored entries against.
func NewLedgerHandler(reader LedgerReader, verifier ChainVerifier, summary SummaryService, policy domain.SplitPolicy) *LedgerHandler {
	return &LedgerHandler{
		reader:   reader,
		verifier: verifier,
		summary:  summary,
		policy:   policy,
	}
}

// Entries dumps the chain. Without from or limit the whole chain is
// returned from one snapshot; otherwise one page starting at from.
func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("from") == "" && q.Get("limit") == "" {
		entries, err := h.reader.ReadAll(r.Context())
		if err != nil {
			writeError(w, mapDomainError(err), "failed to read ledger", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, dto.EntriesResponse{Entries: dto.EntriesFromDomain(entries)})
		return
	}

	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if q.Get("from") != "" && err != nil {
		writeError(w, http.StatusBadRequest, "invalid from", err.Error())
		return
	}
	limit, from := domain.ValidatePagination(parseIntQuery(r, "limit", 0), from)

	entries, err := h.reader.ReadFrom(r.Context(), from, limit)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to read ledger", err.Error())
		return
	}

	resp := dto.EntriesResponse{Entries: dto.EntriesFromDomain(entries)}
	if len(entries) == limit {
		next := entries[len(entries)-1].Sequence + 1
		resp.NextFrom = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// Summary returns aggregate totals. A broken chain yields 409 with totals
// up to the break.
func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summary.Summary(r.Context())
	if err != nil {
		if summary != nil && errors.Is(err, domain.ErrIntegrityViolation) {
			writeJSON(w, http.StatusConflict, dto.SummaryFromUseCase(summary))
			return
		}
		writeError(w, mapDomainError(err), "failed to compute summary", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.SummaryFromUseCase(summary))
}

// Verify walks the chain from genesis.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.verifier.Verify(r.Context())
	if err != nil {
		writeError(w, mapDomainError(err), "failed to verify ledger", err.Error())
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// Audit verifies the chain and reports deviations from the current policy.
func (h *LedgerHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.verifier.Audit(r.Context(), h.policy)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to audit ledger", err.Error())
		return
	}

	status := http.StatusOK
	if !report.Verification.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

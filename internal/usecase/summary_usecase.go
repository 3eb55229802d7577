package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
)

// Summary is the aggregate view of the ledger for dashboards.
type Summary struct {
	LastVerifiedAt      time.Time               `json:"last_verified_at"`
	BrokenAt            *int64                  `json:"broken_at"`
	ByStream            map[domain.Stream]int64 `json:"by_stream"`
	LastHash            string                  `json:"last_hash"`
	TotalGross          int64                   `json:"total_gross"`
	TotalCharity        int64                   `json:"total_charity"`
	TotalInfrastructure int64                   `json:"total_infrastructure"`
	TotalFounder        int64                   `json:"total_founder"`
	TotalRefunded       int64                   `json:"total_refunded"`
	EntryCount          int64                   `json:"entry_count"`
	LastSequence        int64                   `json:"last_sequence"`
	Valid               bool                    `json:"valid"`
}

// SummaryFromVerification builds a summary from a verification result.
// LastSequence is -1 for an empty ledger.
func SummaryFromVerification(v *VerifyResult) *Summary {
	byStream := make(map[domain.Stream]int64, len(v.Totals.ByStream))
	for k, val := range v.Totals.ByStream {
		byStream[k] = val
	}

	return &Summary{
		LastVerifiedAt:      v.VerifiedAt,
		BrokenAt:            v.BrokenAt,
		ByStream:            byStream,
		LastHash:            v.LastHash,
		TotalGross:          v.Totals.Gross,
		TotalCharity:        v.Totals.Charity,
		TotalInfrastructure: v.Totals.Infrastructure,
		TotalFounder:        v.Totals.Founder,
		TotalRefunded:       v.Totals.Refunded,
		EntryCount:          v.EntryCount,
		LastSequence:        v.EntryCount - 1,
		Valid:               v.Valid,
	}
}

// SummaryUseCase serves aggregate totals, cached for a short interval.
type SummaryUseCase struct {
	verifier *VerifierUseCase
	cache    Cache
	logger   zerolog.Logger
	ttl      time.Duration
}

// NewSummaryUseCase creates a new SummaryUseCase. cache may be nil.
func NewSummaryUseCase(verifier *VerifierUseCase, cache Cache, ttl time.Duration, logger zerolog.Logger) *SummaryUseCase {
	if ttl <= 0 {
		ttl = DefaultSummaryCacheTTL
	}
	return &SummaryUseCase{
		verifier: verifier,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With().Str("component", "summary").Logger(),
	}
}

// Summary returns the aggregate summary. When the chain is broken it returns
// the summary up to the break together with an *domain.IntegrityError, and
// the result is never cached.
func (uc *SummaryUseCase) Summary(ctx context.Context) (*Summary, error) {
	if cached := uc.fromCache(ctx); cached != nil {
		return cached, nil
	}

	result, err := uc.verifier.Verify(ctx)
	if err != nil {
		return nil, err
	}

	summary := SummaryFromVerification(result)
	if !result.Valid {
		return summary, result.Err()
	}

	uc.store(ctx, summary)
	uc.dropIfSuperseded(ctx, summary)
	return summary, nil
}

// dropIfSuperseded removes a just-stored summary when the ledger grew while
// it was computed. An append that commits after this check invalidates the
// cache itself, so a stale summary never outlives both.
func (uc *SummaryUseCase) dropIfSuperseded(ctx context.Context, summary *Summary) {
	if uc.cache == nil {
		return
	}

	newer, err := uc.verifier.ledger.ReadFrom(ctx, summary.LastSequence+1, 1)
	if err != nil {
		uc.logger.Warn().Err(err).Msg("summary freshness check failed")
	}
	if err == nil && len(newer) == 0 {
		return
	}

	uc.logger.Debug().Int64("last_sequence", summary.LastSequence).Msg("dropping superseded summary")
	if err := uc.cache.Delete(ctx, SummaryCacheKey); err != nil {
		uc.logger.Warn().Err(err).Msg("summary cache delete failed")
	}
}

// Invalidate drops the cached summary.
func (uc *SummaryUseCase) Invalidate(ctx context.Context) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Delete(ctx, SummaryCacheKey)
}

func (uc *SummaryUseCase) fromCache(ctx context.Context) *Summary {
	if uc.cache == nil {
		return nil
	}

	data, err := uc.cache.Get(ctx, SummaryCacheKey)
	if err != nil {
		uc.logger.Warn().Err(err).Msg("summary cache read failed")
		return nil
	}
	if data == nil {
		return nil
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		uc.logger.Warn().Err(err).Msg("discarding malformed cached summary")
		return nil
	}
	return &summary
}

func (uc *SummaryUseCase) store(ctx context.Context, summary *Summary) {
	if uc.cache == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		uc.logger.Warn().Err(err).Msg("failed to encode summary")
		return
	}
	if err := uc.cache.Set(ctx, SummaryCacheKey, data, uc.ttl); err != nil {
		uc.logger.Warn().Err(err).Msg("summary cache write failed")
	}
}

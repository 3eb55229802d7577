package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
)

// Verifier walks the chain.
type Verifier interface {
	Verify(ctx context.Context) (*usecase.VerifyResult, error)
}

// VerifyWorker periodically verifies the chain and alerts when it breaks.
type VerifyWorker struct {
	verifier Verifier
	alerter  usecase.Alerter
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	// lastBroken is the sequence already alerted on, nil while valid.
	lastBroken *int64
}

// NewVerifyWorker creates a VerifyWorker.
func NewVerifyWorker(verifier Verifier, alerter usecase.Alerter, interval time.Duration, logger zerolog.Logger) *VerifyWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &VerifyWorker{
		verifier: verifier,
		alerter:  alerter,
		logger:   componentLogger(logger, "verify_worker"),
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs until ctx is cancelled.
func (w *VerifyWorker) Start(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.interval).Msg("verify worker started")
	return runEvery(ctx, w.interval, func(ctx context.Context) {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error().Err(err).Msg("verification run failed")
		}
	})
}

// RunOnce verifies the chain once. An alert is raised the first time a
// given break is observed; a repaired chain resets the state.
func (w *VerifyWorker) RunOnce(ctx context.Context) error {
	result, err := w.verifier.Verify(ctx)
	if err != nil {
		return err
	}

	if result.Valid {
		if w.lastBroken != nil {
			w.logger.Info().Int64("entries", result.EntryCount).Msg("ledger chain verifies again")
		}
		w.lastBroken = nil
		return nil
	}

	if w.lastBroken != nil && result.BrokenAt != nil && *w.lastBroken == *result.BrokenAt {
		return nil
	}
	w.lastBroken = result.BrokenAt

	integrityErr := result.Err()
	w.logger.Error().Err(integrityErr).Msg("ledger integrity violation")

	if w.alerter == nil {
		return nil
	}
	return w.alerter.Alert(ctx, domain.Alert{
		OccurredAt: w.now(),
		Severity:   domain.AlertSeverityCritical,
		Title:      "Ledger integrity violation",
		Reason:     fmt.Sprint(integrityErr),
	})
}

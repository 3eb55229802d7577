package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/usecase"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts     int
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig returns the schedule used for ledger appends.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		AttemptTimeout:  usecase.DefaultAppendTimeout,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Retrier implements usecase.Retrier with exponential backoff.
type Retrier struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a Retrier.
func New(cfg Config, logger zerolog.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Retrier{
		cfg:    cfg,
		logger: logger.With().Str("component", "retrier").Logger(),
	}
}

// Retry executes operation until it succeeds, the attempt ceiling is hit,
// the error is permanent, or ctx ends. Each attempt runs under its own
// timeout derived from ctx.
func (r *Retrier) Retry(ctx context.Context, operation func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	attempt := 0

	err := backoff.Retry(func() error {
		attempt++

		err := r.runAttempt(ctx, operation)
		if err == nil {
			return nil
		}

		var permanent *usecase.PermanentError
		if errors.As(err, &permanent) {
			return backoff.Permanent(permanent.Err)
		}

		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		if attempt >= r.cfg.MaxAttempts {
			return backoff.Permanent(err)
		}

		r.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", r.cfg.MaxAttempts).
			Msg("retryable storage error, retrying")

		return err
	}, backoff.WithContext(b, ctx))

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(ctxErr, err)
	}
	return err
}

func (r *Retrier) runAttempt(ctx context.Context, operation func(ctx context.Context) error) error {
	if r.cfg.AttemptTimeout <= 0 {
		return operation(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	return operation(attemptCtx)
}

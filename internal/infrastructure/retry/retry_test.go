package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/revledger/internal/usecase"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:     attempts,
		AttemptTimeout:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestRetrierRetriesUntilSuccess(t *testing.T) {
	r := New(fastConfig(5), zerolog.Nop())

	attempts := 0
	err := r.Retry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrierStopsAtAttemptCeiling(t *testing.T) {
	r := New(fastConfig(3), zerolog.Nop())
	transient := errors.New("transient")

	attempts := 0
	err := r.Retry(context.Background(), func(context.Context) error {
		attempts++
		return transient
	})

	if !errors.Is(err, transient) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	r := New(fastConfig(5), zerolog.Nop())
	permanentErr := errors.New("permanent")

	attempts := 0
	err := r.Retry(context.Background(), func(context.Context) error {
		attempts++
		return usecase.Permanent(permanentErr)
	})

	if !errors.Is(err, permanentErr) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if usecase.IsPermanent(err) {
		t.Fatalf("expected permanent wrapper to be removed")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetrierAppliesAttemptTimeout(t *testing.T) {
	cfg := fastConfig(2)
	cfg.AttemptTimeout = 10 * time.Millisecond
	r := New(cfg, zerolog.Nop())

	attempts := 0
	err := r.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected attempt timeout to be retried, got %d attempts", attempts)
	}
}

func TestRetrierHonoursCallerCancellation(t *testing.T) {
	r := New(fastConfig(5), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := r.Retry(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

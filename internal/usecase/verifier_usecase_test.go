package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/revledger/internal/domain"
	"github.com/iho/revledger/internal/usecase"
	"github.com/iho/revledger/internal/usecase/mocks"
)

func seedLedger(t *testing.T, n int) *engineFixture {
	t.Helper()

	f := newEngine(t, 1)
	for i := range n {
		outcome := f.uc.Process(context.Background(), payment(fmt.Sprintf("evt_%d", i), int64(1000*(i+1))))
		require.Equal(t, usecase.OutcomeAccepted, outcome.Status, outcome.Reason)
	}
	return f
}

func TestVerifierUseCase_ValidChain(t *testing.T) {
	f := seedLedger(t, 5)
	metrics := mocks.NewRecordingMetrics()
	verifier := usecase.NewVerifierUseCase(f.ledger, metrics)

	result, err := verifier.Verify(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Nil(t, result.BrokenAt)
	assert.NoError(t, result.Err())
	assert.Equal(t, int64(5), result.EntryCount)
	assert.Equal(t, f.ledger.Entries()[4].Hash, result.LastHash)
	assert.False(t, result.VerifiedAt.IsZero())

	// 1000+2000+3000+4000+5000
	assert.Equal(t, int64(15000), result.Totals.Gross)
	assert.Equal(t, int64(7500), result.Totals.Charity)
	assert.Equal(t, int64(4500), result.Totals.Infrastructure)
	assert.Equal(t, int64(3000), result.Totals.Founder)
	assert.Equal(t, 1, metrics.Verifications)
}

func TestVerifierUseCase_EmptyLedger(t *testing.T) {
	verifier := usecase.NewVerifierUseCase(mocks.NewMemoryLedger(), nil)

	result, err := verifier.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Zero(t, result.EntryCount)
	assert.Empty(t, result.LastHash)
}

func TestVerifierUseCase_DetectsTampering(t *testing.T) {
	tests := []struct {
		name     string
		sequence int64
		tamper   func(e *domain.LedgerEntry)
		brokenAt int64
	}{
		{
			name:     "amount changed",
			sequence: 2,
			tamper:   func(e *domain.LedgerEntry) { e.Event.GrossAmount++ },
			brokenAt: 2,
		},
		{
			name:     "previous hash changed",
			sequence: 3,
			tamper:   func(e *domain.LedgerEntry) { e.PreviousHash = "deadbeef" },
			brokenAt: 3,
		},
		{
			name:     "split shifted between buckets",
			sequence: 1,
			tamper:   func(e *domain.LedgerEntry) { e.Split.Charity--; e.Split.Founder++ },
			brokenAt: 1,
		},
		{
			name:     "stored hash rewritten",
			sequence: 0,
			tamper:   func(e *domain.LedgerEntry) { e.Hash = "0000" },
			brokenAt: 0,
		},
		{
			name:     "genesis link altered",
			sequence: 0,
			tamper:   func(e *domain.LedgerEntry) { e.PreviousHash = "" },
			brokenAt: 0,
		},
		{
			name:     "metadata injected",
			sequence: 4,
			tamper:   func(e *domain.LedgerEntry) { e.Event.Metadata["note"] = "edited" },
			brokenAt: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := seedLedger(t, 5)
			f.ledger.Tamper(tt.sequence, tt.tamper)

			result, err := usecase.NewVerifierUseCase(f.ledger, nil).Verify(context.Background())
			require.NoError(t, err)

			assert.False(t, result.Valid)
			require.NotNil(t, result.BrokenAt)
			assert.Equal(t, tt.brokenAt, *result.BrokenAt)
			assert.NotEmpty(t, result.Reason)

			var ie *domain.IntegrityError
			require.ErrorAs(t, result.Err(), &ie)
			assert.Equal(t, tt.brokenAt, ie.Sequence)
			assert.ErrorIs(t, result.Err(), domain.ErrIntegrityViolation)

			// Totals stop before the broken entry.
			assert.Equal(t, tt.brokenAt, result.EntryCount)
		})
	}
}

func TestVerifyEntries_SequenceGap(t *testing.T) {
	f := seedLedger(t, 3)
	entries := f.ledger.Entries()

	result := usecase.VerifyEntries([]*domain.LedgerEntry{entries[0], entries[2]})

	assert.False(t, result.Valid)
	require.NotNil(t, result.BrokenAt)
	assert.Equal(t, int64(1), *result.BrokenAt)
	assert.Contains(t, result.Reason, "sequence")
}

func TestVerifyEntries_SplitSumMismatchWithValidHash(t *testing.T) {
	event := payment("evt_x", 100)
	bad := domain.SplitResult{Charity: 50, Infrastructure: 30, Founder: 10}
	entry, err := domain.NewLedgerEntry(0, event, bad, domain.GenesisHash, event.Timestamp)
	require.NoError(t, err)

	result := usecase.VerifyEntries([]*domain.LedgerEntry{entry})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "split total")
}

func TestVerifierUseCase_StorageErrorIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerRepository(ctrl)
	storeErr := errors.New("connection refused")
	ledger.EXPECT().ReadAll(gomock.Any()).Return(nil, storeErr)

	result, err := usecase.NewVerifierUseCase(ledger, nil).Verify(context.Background())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, storeErr)
}

func TestVerifierUseCase_Audit(t *testing.T) {
	f := seedLedger(t, 3)
	verifier := usecase.NewVerifierUseCase(f.ledger, nil)

	report, err := verifier.Audit(context.Background(), domain.DefaultSplitPolicy)
	require.NoError(t, err)
	assert.True(t, report.Verification.Valid)
	assert.Empty(t, report.PolicyDeviations)
	assert.Empty(t, report.DuplicateEvents)

	// A different policy reports every entry as deviating but the chain stays valid.
	other := domain.SplitPolicy{CharityPercent: 60, InfrastructurePercent: 30, FounderPercent: 10}
	report, err = verifier.Audit(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, report.Verification.Valid)
	require.Len(t, report.PolicyDeviations, 3)
	assert.Equal(t, int64(600), report.PolicyDeviations[0].Expected.Charity)
	assert.Equal(t, int64(500), report.PolicyDeviations[0].Stored.Charity)

	_, err = verifier.Audit(context.Background(), domain.SplitPolicy{})
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
}

func TestVerifierUseCase_AuditFindsDuplicateIDs(t *testing.T) {
	first, _ := domain.NewLedgerEntry(0, payment("evt_dup", 100), domain.SplitResult{Charity: 50, Infrastructure: 30, Founder: 20}, domain.GenesisHash, payment("", 0).Timestamp)
	second, _ := domain.NewLedgerEntry(1, payment("evt_dup", 100), domain.SplitResult{Charity: 50, Infrastructure: 30, Founder: 20}, first.Hash, payment("", 0).Timestamp)

	ledger := mocks.NewMemoryLedger()
	ledger.ReadAllFunc = func(context.Context) ([]*domain.LedgerEntry, error) {
		return []*domain.LedgerEntry{first, second}, nil
	}

	report, err := usecase.NewVerifierUseCase(ledger, nil).Audit(context.Background(), domain.DefaultSplitPolicy)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_dup"}, report.DuplicateEvents)
}

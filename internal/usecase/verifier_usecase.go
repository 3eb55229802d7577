package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/revledger/internal/domain"
)

// VerifyResult is the outcome of walking the chain from genesis. Totals
// cover only the entries before BrokenAt when the chain is broken.
type VerifyResult struct {
	VerifiedAt time.Time     `json:"verified_at"`
	BrokenAt   *int64        `json:"broken_at"`
	Reason     string        `json:"reason,omitempty"`
	LastHash   string        `json:"last_hash"`
	Totals     domain.Totals `json:"totals"`
	EntryCount int64         `json:"entry_count"`
	Valid      bool          `json:"valid"`
}

// Err returns an *domain.IntegrityError when the chain is broken.
func (r *VerifyResult) Err() error {
	if r.Valid || r.BrokenAt == nil {
		return nil
	}
	return &domain.IntegrityError{Sequence: *r.BrokenAt, Reason: r.Reason}
}

// VerifyEntries checks an ordered snapshot of the ledger. It has no side
// effects and stops at the first broken entry.
func VerifyEntries(entries []*domain.LedgerEntry) *VerifyResult {
	result := &VerifyResult{
		Totals: domain.NewTotals(),
		Valid:  true,
	}

	prior := domain.GenesisHash
	for i, entry := range entries {
		if reason := checkEntry(int64(i), entry, prior); reason != "" {
			seq := int64(i)
			result.Valid = false
			result.BrokenAt = &seq
			result.Reason = reason
			return result
		}

		result.Totals.Apply(entry)
		result.EntryCount++
		result.LastHash = entry.Hash
		prior = entry.Hash
	}

	return result
}

func checkEntry(index int64, entry *domain.LedgerEntry, prior string) string {
	if entry.Sequence != index {
		return fmt.Sprintf("sequence %d found at position %d", entry.Sequence, index)
	}

	if want := domain.ExpectedPreviousHash(index, prior); entry.PreviousHash != want {
		return fmt.Sprintf("previous hash %q does not match %q", entry.PreviousHash, want)
	}

	hash, err := entry.RecomputeHash()
	if err != nil {
		return fmt.Sprintf("cannot recompute hash: %v", err)
	}
	if hash != entry.Hash {
		return fmt.Sprintf("stored hash %q does not match recomputed %q", entry.Hash, hash)
	}

	s := entry.Split
	if s.Charity < 0 || s.Infrastructure < 0 || s.Founder < 0 {
		return "split contains a negative bucket"
	}
	if s.Total() != entry.Event.GrossAmount {
		return fmt.Sprintf("split total %d does not equal gross %d", s.Total(), entry.Event.GrossAmount)
	}

	return ""
}

// VerifierUseCase verifies the stored chain.
type VerifierUseCase struct {
	ledger  LedgerRepository
	metrics Metrics
	now     func() time.Time
}

// NewVerifierUseCase creates a new VerifierUseCase. metrics may be nil.
func NewVerifierUseCase(ledger LedgerRepository, metrics Metrics) *VerifierUseCase {
	return &VerifierUseCase{
		ledger:  ledger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Verify reads one snapshot of the ledger and checks it. Storage failures
// are returned as errors; integrity failures are reported in the result.
func (uc *VerifierUseCase) Verify(ctx context.Context) (*VerifyResult, error) {
	start := time.Now()

	entries, err := uc.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	result := VerifyEntries(entries)
	result.VerifiedAt = uc.now()

	if uc.metrics != nil {
		uc.metrics.ObserveVerification(result.Valid, result.EntryCount, time.Since(start))
	}

	return result, nil
}

// PolicyDeviation is an entry whose stored split differs from what the
// given policy would produce today.
type PolicyDeviation struct {
	EventID  string             `json:"event_id"`
	Stored   domain.SplitResult `json:"stored"`
	Expected domain.SplitResult `json:"expected"`
	Sequence int64              `json:"sequence"`
}

// AuditReport extends a verification with informational findings.
type AuditReport struct {
	Verification     *VerifyResult      `json:"verification"`
	Policy           domain.SplitPolicy `json:"policy"`
	PolicyDeviations []PolicyDeviation  `json:"policy_deviations"`
	DuplicateEvents  []string           `json:"duplicate_events"`
}

// Audit verifies the chain and additionally lists policy deviations and
// repeated event ids. Deviations do not make the chain invalid.
func (uc *VerifierUseCase) Audit(ctx context.Context, policy domain.SplitPolicy) (*AuditReport, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	entries, err := uc.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	verification := VerifyEntries(entries)
	verification.VerifiedAt = uc.now()

	report := &AuditReport{
		Verification:     verification,
		Policy:           policy,
		PolicyDeviations: []PolicyDeviation{},
		DuplicateEvents:  []string{},
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.Event.EventID] {
			report.DuplicateEvents = append(report.DuplicateEvents, entry.Event.EventID)
		}
		seen[entry.Event.EventID] = true

		expected, err := domain.Split(entry.Event.GrossAmount, policy)
		if err != nil || expected != entry.Split {
			report.PolicyDeviations = append(report.PolicyDeviations, PolicyDeviation{
				Sequence: entry.Sequence,
				EventID:  entry.Event.EventID,
				Stored:   entry.Split,
				Expected: expected,
			})
		}
	}

	return report, nil
}

package domain

import "fmt"

// SplitPolicy holds the allocation percentages. The founder bucket absorbs
// any rounding remainder.
type SplitPolicy struct {
	CharityPercent        int64 `json:"charity_percent" yaml:"charity_percent"`
	InfrastructurePercent int64 `json:"infrastructure_percent" yaml:"infrastructure_percent"`
	FounderPercent        int64 `json:"founder_percent" yaml:"founder_percent"`
}

// DefaultSplitPolicy is used when no policy is configured.
var DefaultSplitPolicy = SplitPolicy{
	CharityPercent:        50,
	InfrastructurePercent: 30,
	FounderPercent:        20,
}

// Validate checks that every percentage is within [0, 100] and that they sum
// to exactly 100.
func (p SplitPolicy) Validate() error {
	for _, v := range []int64{p.CharityPercent, p.InfrastructurePercent, p.FounderPercent} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: got %s", ErrInvalidPolicy, p)
		}
	}
	if p.CharityPercent+p.InfrastructurePercent+p.FounderPercent != 100 {
		return fmt.Errorf("%w: got %s", ErrInvalidPolicy, p)
	}
	return nil
}

func (p SplitPolicy) String() string {
	return fmt.Sprintf("%d/%d/%d", p.CharityPercent, p.InfrastructurePercent, p.FounderPercent)
}

// SplitResult is the allocation of one gross amount. The buckets always sum
// to the gross amount they were computed from.
type SplitResult struct {
	Charity        int64 `json:"charity"`
	Infrastructure int64 `json:"infrastructure"`
	Founder        int64 `json:"founder"`
}

// Total returns the sum of all buckets.
func (r SplitResult) Total() int64 {
	return r.Charity + r.Infrastructure + r.Founder
}

// Split allocates gross minor units according to policy. Charity and
// infrastructure are floored; founder takes the remainder. The same input
// always yields the same output.
func Split(gross int64, policy SplitPolicy) (SplitResult, error) {
	if gross < 0 {
		return SplitResult{}, ErrNegativeAmount
	}
	if err := policy.Validate(); err != nil {
		return SplitResult{}, err
	}
	if gross == 0 {
		return SplitResult{}, nil
	}

	charity := percentOf(gross, policy.CharityPercent)
	infrastructure := percentOf(gross, policy.InfrastructurePercent)

	return SplitResult{
		Charity:        charity,
		Infrastructure: infrastructure,
		Founder:        gross - charity - infrastructure,
	}, nil
}

// percentOf returns floor(gross*pct/100) without overflowing int64 for any
// non-negative gross.
func percentOf(gross, pct int64) int64 {
	return (gross/100)*pct + (gross%100)*pct/100
}

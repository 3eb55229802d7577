package domain

import (
	"github.com/shopspring/decimal"
)

// Totals are signed running sums over the ledger. Refunds subtract.
type Totals struct {
	ByStream       map[Stream]int64 `json:"by_stream"`
	Gross          int64            `json:"gross"`
	Charity        int64            `json:"charity"`
	Infrastructure int64            `json:"infrastructure"`
	Founder        int64            `json:"founder"`
	Refunded       int64            `json:"refunded"`
}

// NewTotals returns zeroed totals.
func NewTotals() Totals {
	return Totals{ByStream: make(map[Stream]int64)}
}

// Apply folds one entry into the totals.
func (t *Totals) Apply(e *LedgerEntry) {
	if t.ByStream == nil {
		t.ByStream = make(map[Stream]int64)
	}

	sign := int64(1)
	if e.Event.IsRefund() {
		sign = -1
		t.Refunded += e.Event.GrossAmount
	}

	t.Gross += sign * e.Event.GrossAmount
	t.Charity += sign * e.Split.Charity
	t.Infrastructure += sign * e.Split.Infrastructure
	t.Founder += sign * e.Split.Founder
	t.ByStream[e.Event.Stream] += sign * e.Event.GrossAmount
}

// minorUnitExp is the exponent between minor and major currency units.
const minorUnitExp = -2

// MajorUnits renders minor units as a fixed two-decimal amount, e.g. 1050 -> "10.50".
func MajorUnits(minor int64) string {
	return decimal.New(minor, minorUnitExp).StringFixed(2)
}

// Share returns part as a percentage of whole with two decimals. A zero
// whole yields "0.00".
func Share(part, whole int64) string {
	if whole == 0 {
		return decimal.Zero.StringFixed(2)
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).
		StringFixed(2)
}

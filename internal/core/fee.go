package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeePolicy is the monthly-fee rule in force from EffectiveFrom. The fee is
// the monthly budget split across active members, never below Base.
type FeePolicy struct {
	ID            int64
	EffectiveFrom Date
	Base          Money
	MonthlyBudget Money
}

// MonthlyFee applies the policy for the given number of active members.
// The per-member share is rounded up to the cent.
func (p FeePolicy) MonthlyFee(activeMembers int) Money {
	if activeMembers <= 0 || p.MonthlyBudget.Cents <= 0 {
		return p.Base
	}
	share := decimal.NewFromInt(p.MonthlyBudget.Cents).
		Div(decimal.NewFromInt(int64(activeMembers))).
		Ceil()
	if share.LessThan(decimal.NewFromInt(p.Base.Cents)) {
		return p.Base
	}
	return Money{Cents: share.IntPart()}
}

// PolicyAt returns the latest policy effective on now.
func PolicyAt(policies []FeePolicy, now time.Time) (FeePolicy, bool) {
	today := DateOf(now)
	var best FeePolicy
	found := false
	for _, p := range policies {
		if p.EffectiveFrom.After(today.Time) {
			continue
		}
		if !found || p.EffectiveFrom.After(best.EffectiveFrom.Time) {
			best, found = p, true
		}
	}
	return best, found
}

func (p FeePolicy) Validate() error {
	if err := p.EffectiveFrom.Validate(); err != nil {
		return &ValidationError{Field: "effective_from", Reason: err.Error()}
	}
	if p.Base.Cents <= 0 && p.MonthlyBudget.Cents <= 0 {
		return &ValidationError{Field: "base", Reason: "either base or monthly budget must be positive"}
	}
	if p.Base.Cents < 0 || p.MonthlyBudget.Cents < 0 {
		return &ValidationError{Field: "base", Reason: "amounts cannot be negative"}
	}
	return nil
}

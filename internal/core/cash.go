package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	Income  MovementType = "income"
	Expense MovementType = "expense"

	MonthlyFee     Category = "monthly_fee"
	SolidarityFund Category = "solidarity_fund"
	OtherIncome    Category = "other"
	ExpenseOut     Category = "expense"
)

type (
	MovementType string

	Category string

	// CashMovement is one additive ledger entry. Amount is always a
	// positive magnitude; Type carries the sign.
	CashMovement struct {
		ID          int64
		Type        MovementType
		Category    Category
		Amount      Money
		Month       int
		Year        int
		Description string
		Recurring   bool
		CreatedAt   time.Time
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		Name   string
		Amount Money
	}

	// CashBalance summarizes one (month, year). Expenses is a positive
	// magnitude; Net may be negative.
	CashBalance struct {
		Month          int
		Year           int
		MonthlyFees    Money
		SolidarityFund Money
		OtherIncome    Money
		Expenses       Money
		TotalIncome    Money
		Net            Money
		Cumulative     Money
		ByCategory     []CategoryAmount
	}
)

func (t MovementType) Valid() bool {
	return t == Income || t == Expense
}

func (c Category) Valid() bool {
	switch c {
	case MonthlyFee, SolidarityFund, OtherIncome, ExpenseOut:
		return true
	}
	return false
}

func (c CashMovement) Validate() error {
	if !c.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown movement type %q", c.Type)}
	}
	if !c.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", c.Category)}
	}
	if c.Type == Expense && c.Category != ExpenseOut {
		return &ValidationError{Field: "category", Reason: "expenses must use the expense category"}
	}
	if err := c.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !ValidMonth(c.Month) {
		return &ValidationError{Field: "month", Reason: fmt.Sprintf("%d is not in 1..12", c.Month)}
	}
	if c.Year < 1900 || c.Year > 9999 {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("%d is out of range", c.Year)}
	}
	if len(strings.TrimSpace(c.Description)) > 200 {
		return &ValidationError{Field: "description", Reason: "too long (max 200 characters)"}
	}
	return nil
}

// isExpense treats rows typed expense, or filed under the expense
// category, as outflows.
func (c CashMovement) isExpense() bool {
	return c.Type == Expense || c.Category == ExpenseOut
}

// ComputeBalance aggregates the movements of (month, year). Other periods
// are ignored. Expense rows never contribute to income subtotals.
func ComputeBalance(month, year int, movements []CashMovement) CashBalance {
	b := CashBalance{Month: month, Year: year}
	for _, mv := range movements {
		if mv.Month != month || mv.Year != year {
			continue
		}
		amt := mv.Amount.Abs()
		if mv.isExpense() {
			b.Expenses = b.Expenses.Add(amt)
			continue
		}
		switch mv.Category {
		case MonthlyFee:
			b.MonthlyFees = b.MonthlyFees.Add(amt)
		case SolidarityFund:
			b.SolidarityFund = b.SolidarityFund.Add(amt)
		default:
			b.OtherIncome = b.OtherIncome.Add(amt)
		}
	}
	b.TotalIncome = b.MonthlyFees.Add(b.SolidarityFund).Add(b.OtherIncome)
	b.Net = b.TotalIncome.Sub(b.Expenses)
	b.Cumulative = b.Net
	b.ByCategory = []CategoryAmount{
		{Name: string(MonthlyFee), Amount: b.MonthlyFees},
		{Name: string(SolidarityFund), Amount: b.SolidarityFund},
		{Name: string(OtherIncome), Amount: b.OtherIncome},
		{Name: string(ExpenseOut), Amount: b.Expenses},
	}
	sort.SliceStable(b.ByCategory, func(i, j int) bool {
		return b.ByCategory[i].Amount.Cents > b.ByCategory[j].Amount.Cents
	})
	return b
}

// YearBalances returns the twelve monthly balances of year, with
// Cumulative carrying the running net from January.
func YearBalances(year int, movements []CashMovement) []CashBalance {
	out := make([]CashBalance, 0, 12)
	var running Money
	for m := 1; m <= 12; m++ {
		b := ComputeBalance(m, year, movements)
		running = running.Add(b.Net)
		b.Cumulative = running
		out = append(out, b)
	}
	return out
}

// ExpensesLabel renders the expense total as a magnitude with an explicit
// minus sign for display.
func (b CashBalance) ExpensesLabel(f Formatter) string {
	if b.Expenses.Cents == 0 {
		return f.Format(Money{})
	}
	return "- " + f.Format(b.Expenses.Abs())
}

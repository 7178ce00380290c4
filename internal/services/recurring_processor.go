package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lodge/internal/core"
	"lodge/internal/ports"
)

// RecurringProcessor carries movements flagged as recurring from the
// previous month into the current one.
type RecurringProcessor struct {
	store ports.CashStore
	day   int
}

// NewRecurringProcessor copies recurring movements once the month reaches day.
func NewRecurringProcessor(store ports.CashStore, day int) *RecurringProcessor {
	if day < 1 {
		day = 1
	}
	return &RecurringProcessor{store: store, day: day}
}

// ProcessMonth returns the number of movements created for now's month.
// Running it again in the same month creates nothing.
func (p *RecurringProcessor) ProcessMonth(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	if !p.isDue(now) {
		return 0, nil
	}

	month, year := int(now.Month()), now.Year()
	prevMonth, prevYear := month-1, year
	if prevMonth == 0 {
		prevMonth, prevYear = 12, year-1
	}

	previous, err := p.store.ListMovements(ctx, ports.CashFilter{Month: prevMonth, Year: prevYear})
	if err != nil {
		return 0, fmt.Errorf("failed to list previous movements: %w", err)
	}
	current, err := p.store.ListMovements(ctx, ports.CashFilter{Month: month, Year: year})
	if err != nil {
		return 0, fmt.Errorf("failed to list current movements: %w", err)
	}

	have := make(map[string]bool, len(current))
	for _, mv := range current {
		if mv.Recurring {
			have[recurringKey(mv)] = true
		}
	}

	slog.InfoContext(ctx, "Processing recurring movements",
		"from", fmt.Sprintf("%04d-%02d", prevYear, prevMonth),
		"to", fmt.Sprintf("%04d-%02d", year, month))

	created := 0
	for _, mv := range previous {
		if !mv.Recurring || have[recurringKey(mv)] {
			continue
		}
		next := core.CashMovement{
			Type:        mv.Type,
			Category:    mv.Category,
			Amount:      mv.Amount,
			Month:       month,
			Year:        year,
			Description: mv.Description,
			Recurring:   true,
		}
		id, err := p.store.InsertMovement(ctx, next)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to copy recurring movement",
				"source_id", mv.ID,
				"error", err)
			continue
		}
		have[recurringKey(next)] = true
		created++
		slog.InfoContext(ctx, "Created movement from recurring entry",
			"source_id", mv.ID,
			"id", id,
			"category", mv.Category,
			"amount_cents", mv.Amount.Cents)
	}

	slog.InfoContext(ctx, "Recurring movement processing complete", "created", created)
	return created, nil
}

// isDue reports whether now has reached the processing day of its month.
// A day past the month's end clamps to the last day.
func (p *RecurringProcessor) isDue(now time.Time) bool {
	lastDayOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	target := p.day
	if target > lastDayOfMonth {
		target = lastDayOfMonth
	}
	return now.Day() >= target
}

func recurringKey(mv core.CashMovement) string {
	return fmt.Sprintf("%s|%s|%d|%s", mv.Type, mv.Category, mv.Amount.Cents, mv.Description)
}

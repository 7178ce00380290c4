// Package services holds the use cases of the lodge: authorization, dues and
// cash bookkeeping, reports, polls and the periodic maintenance jobs.
package services

import (
	"context"
	"log/slog"

	"lodge/internal/amqp"
)

// Publisher delivers ledger events; *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// publishEvent is best effort: the write it reports has already happened,
// so failures are logged and swallowed.
func publishEvent(ctx context.Context, p Publisher, kind string, payload any) {
	if p == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping event", "kind", kind)
		return
	}
	ev, err := amqp.NewLedgerEvent(kind, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build ledger event", "kind", kind, "error", err)
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event", "kind", kind, "event_id", ev.ID, "error", err)
	}
}

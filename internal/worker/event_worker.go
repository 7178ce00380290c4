// Package worker consumes ledger events and keeps the mirrored reports in
// step with the books.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lodge/internal/amqp"
	"lodge/internal/export"
	"lodge/internal/services"
)

// EventStats counts what the worker has handled since start.
type EventStats struct {
	Handled  int64
	Exported int64
	Alerts   int64
	Skipped  int64
}

// EventWorker re-exports the tables touched by ledger writes and logs the
// alerts raised by the maintenance scan.
type EventWorker struct {
	reports  *services.ReportService
	cash     *services.CashService
	exporter services.TableExporter

	mu    sync.Mutex
	stats EventStats
}

// NewEventWorker creates a worker. A nil exporter turns the worker into an
// event logger.
func NewEventWorker(reports *services.ReportService, cash *services.CashService, exporter services.TableExporter) *EventWorker {
	return &EventWorker{reports: reports, cash: cash, exporter: exporter}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// makes the broker redeliver the event.
func (w *EventWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"id", ev.ID,
		"kind", ev.Kind,
		"occurred_at", ev.OccurredAt.Format(time.RFC3339))

	var err error
	switch ev.Kind {
	case amqp.KindDuesCreated:
		err = w.handleDuesCreated(ctx, ev)
	case amqp.KindCashRecorded:
		err = w.handleCashRecorded(ctx, ev)
	case amqp.KindAttendanceAlert:
		err = w.handleAttendanceAlert(ctx, ev)
	case amqp.KindDuesOverdue:
		err = w.handleDuesOverdue(ctx, ev)
	default:
		slog.WarnContext(ctx, "Skipping unknown ledger event", "id", ev.ID, "kind", ev.Kind)
		w.count(func(s *EventStats) { s.Skipped++ })
		return nil
	}
	if err != nil {
		return fmt.Errorf("handle %s event %s: %w", ev.Kind, ev.ID, err)
	}
	w.count(func(s *EventStats) { s.Handled++ })
	return nil
}

func (w *EventWorker) handleDuesCreated(ctx context.Context, ev *amqp.LedgerEvent) error {
	var p amqp.DuesCreatedPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if w.exporter == nil || w.reports == nil {
		return nil
	}
	recs, err := w.reports.PaymentReport(ctx, p.Year)
	if err != nil {
		return fmt.Errorf("build payment report: %w", err)
	}
	if err := w.export(ctx, export.PaymentTable(p.Year, recs)); err != nil {
		return err
	}
	// Paid batches also move the cash book.
	if p.Status == "paid" {
		return w.exportBalances(ctx, p.Year)
	}
	return nil
}

func (w *EventWorker) handleCashRecorded(ctx context.Context, ev *amqp.LedgerEvent) error {
	var p amqp.CashRecordedPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return w.exportBalances(ctx, p.Year)
}

func (w *EventWorker) exportBalances(ctx context.Context, year int) error {
	if w.exporter == nil || w.cash == nil {
		return nil
	}
	bals, err := w.cash.YearBalances(ctx, year)
	if err != nil {
		return fmt.Errorf("build balance report: %w", err)
	}
	return w.export(ctx, export.BalanceTable(year, bals))
}

func (w *EventWorker) handleAttendanceAlert(ctx context.Context, ev *amqp.LedgerEvent) error {
	var p amqp.AttendanceAlertPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	slog.WarnContext(ctx, "Attendance alert",
		"member_id", p.MemberID,
		"name", p.Name,
		"severity", p.Severity,
		"days_since", p.DaysSince,
		"never_attended", p.NeverAttended)
	w.count(func(s *EventStats) { s.Alerts++ })
	return nil
}

func (w *EventWorker) handleDuesOverdue(ctx context.Context, ev *amqp.LedgerEvent) error {
	var p amqp.DuesOverduePayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	slog.WarnContext(ctx, "Dues overdue",
		"member_id", p.MemberID,
		"name", p.Name,
		"months", p.Months,
		"count", p.Count,
		"total_cents", p.TotalCents,
		"critical", p.Critical)
	w.count(func(s *EventStats) { s.Alerts++ })
	return nil
}

func (w *EventWorker) export(ctx context.Context, t export.Table) error {
	if err := w.exporter.Export(ctx, t); err != nil {
		return fmt.Errorf("export %s: %w", t.Title, err)
	}
	slog.InfoContext(ctx, "Report exported", "table", t.Title, "rows", len(t.Rows))
	w.count(func(s *EventStats) { s.Exported++ })
	return nil
}

func (w *EventWorker) count(fn func(*EventStats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

func (w *EventWorker) Stats() EventStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

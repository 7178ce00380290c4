package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lodge/internal/amqp"
	"lodge/internal/core"
	"lodge/internal/ports"
)

// OverdueSweeper flips unpaid dues past their due date to overdue.
type OverdueSweeper struct {
	store ports.DuesStore
}

func NewOverdueSweeper(store ports.DuesStore) *OverdueSweeper {
	return &OverdueSweeper{store: store}
}

// Sweep marks pending rows due before today and returns how many changed.
func (s *OverdueSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := s.store.MarkOverdue(ctx, core.DateOf(now))
	if err != nil {
		return 0, core.Upstream("mark overdue", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Dues marked overdue", "count", n, "as_of", core.DateOf(now).String())
	}
	return n, nil
}

// ScanResult is what one alert scan found.
type ScanResult struct {
	Absences []core.AbsenceAlert
	Overdue  []core.OverdueGroup
}

// AlertScanner publishes absence alerts and critical overdue groups.
type AlertScanner struct {
	reports   *ReportService
	publisher Publisher
}

func NewAlertScanner(reports *ReportService, publisher Publisher) *AlertScanner {
	return &AlertScanner{reports: reports, publisher: publisher}
}

func (a *AlertScanner) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	absences, err := a.reports.AbsenceAlerts(ctx, now)
	if err != nil {
		return ScanResult{}, fmt.Errorf("absence alerts: %w", err)
	}
	overdue, err := a.reports.OverdueReport(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("overdue report: %w", err)
	}

	for _, al := range absences {
		publishEvent(ctx, a.publisher, amqp.KindAttendanceAlert, amqp.AttendanceAlertPayload{
			MemberID:      al.MemberID,
			Name:          al.Name,
			DaysSince:     al.DaysSince,
			Severity:      string(al.Severity),
			NeverAttended: al.NeverAttended,
		})
	}
	for _, g := range overdue.Critical {
		months := make([]string, len(g.Months))
		for i, m := range g.Months {
			months[i] = fmt.Sprintf("%04d-%02d", m.Year, m.Month)
		}
		publishEvent(ctx, a.publisher, amqp.KindDuesOverdue, amqp.DuesOverduePayload{
			MemberID:   g.Member.ID,
			Name:       g.Member.Name,
			Months:     months,
			Count:      g.Count,
			TotalCents: g.Total.Cents,
			Critical:   g.Critical,
		})
	}

	slog.InfoContext(ctx, "Alert scan complete",
		"absence_alerts", len(absences),
		"critical_overdue", len(overdue.Critical))
	return ScanResult{Absences: absences, Overdue: overdue.Critical}, nil
}

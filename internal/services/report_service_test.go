package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"lodge/internal/core"
)

// seedAttendance creates sessions on the given dates and marks presence
// for member at the listed session indexes, stamping rows with the session day.
func seedAttendance(t *testing.T, env testEnv, dates []core.Date, member int64, presentAt map[int]bool) {
	t.Helper()
	ctx := context.Background()
	for i, d := range dates {
		id, err := env.store.CreateSession(ctx, core.Session{Date: d, Time: "20:00", Degree: core.Apprentice, Type: core.Ordinary})
		if err != nil {
			t.Fatal(err)
		}
		at := d.Time.Add(20 * time.Hour)
		env.store.SetClock(func() time.Time { return at })
		if err := env.store.SetAttendance(ctx, id, map[int64]bool{member: presentAt[i]}); err != nil {
			t.Fatal(err)
		}
	}
	env.store.SetClock(func() time.Time { return fixedNow })
}

func TestReportService_AttendanceReport(t *testing.T) {
	env := newTestEnv(t)
	dates := []core.Date{core.NewDate(2024, 1, 10), core.NewDate(2024, 2, 10), core.NewDate(2024, 3, 10), core.NewDate(2024, 4, 10)}
	seedAttendance(t, env, dates, env.member, map[int]bool{0: true, 1: true, 2: true})

	svc := NewReportService(env.store, core.DefaultAlertPolicy())
	sums, err := svc.AttendanceReport(context.Background(), ReportPeriod{})
	if err != nil {
		t.Fatal(err)
	}
	byID := make(map[int64]core.AttendanceSummary)
	for _, s := range sums {
		byID[s.Member.ID] = s
	}
	m := byID[env.member]
	if m.TotalSessions != 4 || m.AttendedSessions != 3 || m.Percentage != 75 {
		t.Errorf("member summary = %+v", m)
	}
	if a := byID[env.admin]; a.AttendedSessions != 0 || a.Percentage != 0 || a.LastAttendance != nil {
		t.Errorf("admin summary = %+v", a)
	}

	from, to := core.NewDate(2024, 2, 1), core.NewDate(2024, 3, 31)
	sums, err = svc.AttendanceReport(context.Background(), ReportPeriod{From: &from, To: &to})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sums {
		if s.Member.ID == env.member && (s.TotalSessions != 2 || s.AttendedSessions != 2) {
			t.Errorf("period summary = %+v", s)
		}
	}

	if _, err := svc.AttendanceReport(context.Background(), ReportPeriod{From: &to, To: &from}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("inverted period should fail validation, got %v", err)
	}
}

func TestReportService_EmptyInputs(t *testing.T) {
	svc := NewReportService(newTestEnv(t).store, core.DefaultAlertPolicy())
	ctx := context.Background()

	sums, err := svc.AttendanceReport(ctx, ReportPeriod{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sums {
		if s.Percentage != 0 || s.TotalSessions != 0 {
			t.Errorf("expected zero summary, got %+v", s)
		}
	}
	alerts, err := svc.AbsenceAlerts(ctx, fixedNow)
	if err != nil || len(alerts) != 0 {
		t.Errorf("no sessions should yield no alerts, got %v, %v", alerts, err)
	}
	rep, err := svc.OverdueReport(ctx)
	if err != nil || len(rep.Groups) != 0 || rep.Total.Cents != 0 {
		t.Errorf("OverdueReport = %+v, %v", rep, err)
	}
	c, err := svc.Compliance(ctx, 2024)
	if err != nil || c != 0 {
		t.Errorf("Compliance = %v, %v", c, err)
	}
}

func TestReportService_AbsenceAlerts(t *testing.T) {
	env := newTestEnv(t)
	// last presence 2024-04-10, 66 days before fixedNow
	dates := []core.Date{core.NewDate(2024, 4, 10), core.NewDate(2024, 6, 1)}
	seedAttendance(t, env, dates, env.member, map[int]bool{0: true})

	svc := NewReportService(env.store, core.DefaultAlertPolicy())
	alerts, err := svc.AbsenceAlerts(context.Background(), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", alerts)
	}
	if !alerts[0].NeverAttended || alerts[0].MemberID != env.admin {
		t.Errorf("never-attended admin should come first: %+v", alerts[0])
	}
	if alerts[1].MemberID != env.member || alerts[1].Severity != core.SeverityCritical || alerts[1].DaysSince != 66 {
		t.Errorf("unexpected member alert: %+v", alerts[1])
	}
}

func seedOverdue(t *testing.T, env testEnv) {
	t.Helper()
	_, err := env.store.InsertDuesBatch(context.Background(), []core.Dues{
		{MemberID: env.member, Month: 3, Year: 2024, Amount: core.Money{Cents: 5000}, Status: core.DuesOverdue, DueDate: core.NewDate(2024, 3, 10)},
		{MemberID: env.member, Month: 4, Year: 2024, Amount: core.Money{Cents: 5000}, Status: core.DuesOverdue, DueDate: core.NewDate(2024, 4, 10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	paid := fixedNow
	_, err = env.store.InsertDuesBatch(context.Background(), []core.Dues{
		{MemberID: env.member, Month: 5, Year: 2024, Amount: core.Money{Cents: 5000}, Status: core.DuesPaid, DueDate: core.NewDate(2024, 5, 10), PaidAt: &paid},
		{MemberID: env.admin, Month: 5, Year: 2024, Amount: core.Money{Cents: 5000}, Status: core.DuesOverdue, DueDate: core.NewDate(2024, 5, 10)},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReportService_OverdueAndPayments(t *testing.T) {
	env := newTestEnv(t)
	seedOverdue(t, env)
	svc := NewReportService(env.store, core.DefaultAlertPolicy())
	ctx := context.Background()

	rep, err := svc.OverdueReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Groups) != 2 || rep.Groups[0].Member.ID != env.member || rep.Groups[0].Count != 2 {
		t.Fatalf("unexpected groups: %+v", rep.Groups)
	}
	if len(rep.Critical) != 1 || rep.Total.Cents != 15000 {
		t.Errorf("critical = %d, total = %d", len(rep.Critical), rep.Total.Cents)
	}

	recs, err := svc.PaymentReport(ctx, 2024)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if r.Member.ID == env.member {
			if r.OverdueCount != 2 || r.LastPayment == nil || len(r.Payments) != 3 {
				t.Errorf("member record = %+v", r)
			}
		}
	}

	c, err := svc.Compliance(ctx, 2024)
	if err != nil || c != 25 {
		t.Errorf("Compliance = %v, %v; want 25", c, err)
	}
}

func TestReportService_MemberProfile(t *testing.T) {
	env := newTestEnv(t)
	seedOverdue(t, env)
	seedAttendance(t, env, []core.Date{core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 8)}, env.member, map[int]bool{1: true})
	svc := NewReportService(env.store, core.DefaultAlertPolicy())
	svc.now = func() time.Time { return fixedNow }

	p, err := svc.MemberProfile(context.Background(), env.member, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Year != 2024 || p.Member.Name != "Bruno" {
		t.Errorf("unexpected profile header: %+v", p)
	}
	if p.Attendance.TotalSessions != 2 || p.Attendance.AttendedSessions != 1 {
		t.Errorf("attendance = %+v", p.Attendance)
	}
	if p.Payments.OverdueCount != 2 || p.Grid[4].Status != core.DuesPaid {
		t.Errorf("payments = %+v grid = %+v", p.Payments, p.Grid)
	}

	if _, err := svc.MemberProfile(context.Background(), 999, 2024); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown member should be not found, got %v", err)
	}
}

func TestReportService_CancelledContextDiscardsResult(t *testing.T) {
	env := newTestEnv(t)
	svc := NewReportService(env.store, core.DefaultAlertPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.AttendanceReport(ctx, ReportPeriod{}); !errors.Is(err, context.Canceled) {
		t.Errorf("AttendanceReport: expected context.Canceled, got %v", err)
	}
	if _, err := svc.OverdueReport(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("OverdueReport: expected context.Canceled, got %v", err)
	}
}

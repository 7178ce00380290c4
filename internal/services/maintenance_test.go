package services

import (
	"context"
	"testing"
	"time"

	"lodge/internal/amqp"
	"lodge/internal/core"
	"lodge/internal/ports"
)

func TestOverdueSweeper_Sweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.InsertDuesBatch(ctx, []core.Dues{
		{MemberID: env.member, Month: 5, Year: 2024, Amount: core.Money{Cents: 100}, Status: core.DuesPending, DueDate: core.NewDate(2024, 5, 10)},
		{MemberID: env.member, Month: 6, Year: 2024, Amount: core.Money{Cents: 100}, Status: core.DuesPending, DueDate: core.NewDate(2024, 6, 15)},
		{MemberID: env.member, Month: 7, Year: 2024, Amount: core.Money{Cents: 100}, Status: core.DuesPending, DueDate: core.NewDate(2024, 7, 10)},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := NewOverdueSweeper(env.store).Sweep(ctx, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row swept (due today is not late), got %d", n)
	}
	overdue, _ := env.store.ListDues(ctx, ports.DuesFilter{Status: core.DuesOverdue})
	if len(overdue) != 1 || overdue[0].Month != 5 {
		t.Errorf("unexpected overdue rows: %+v", overdue)
	}

	n, _ = NewOverdueSweeper(env.store).Sweep(ctx, fixedNow)
	if n != 0 {
		t.Errorf("second sweep should change nothing, got %d", n)
	}
}

func TestAlertScanner_PublishesEvents(t *testing.T) {
	env := newTestEnv(t)
	seedOverdue(t, env)
	seedAttendance(t, env, []core.Date{core.NewDate(2024, 6, 10)}, env.member, map[int]bool{0: true})

	scanner := NewAlertScanner(NewReportService(env.store, core.DefaultAlertPolicy()), env.pub)
	res, err := scanner.Scan(context.Background(), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Absences) != 1 || res.Absences[0].MemberID != env.admin {
		t.Errorf("expected only the never-attended admin, got %+v", res.Absences)
	}
	if len(res.Overdue) != 1 || res.Overdue[0].Member.ID != env.member {
		t.Errorf("expected one critical group, got %+v", res.Overdue)
	}
	kinds := env.pub.kinds()
	if kinds[amqp.KindAttendanceAlert] != 1 || kinds[amqp.KindDuesOverdue] != 1 {
		t.Errorf("unexpected events: %v", kinds)
	}

	var payload amqp.DuesOverduePayload
	for _, ev := range env.pub.events {
		if ev.Kind == amqp.KindDuesOverdue {
			if err := ev.Decode(&payload); err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(payload.Months) != 2 || payload.Months[0] != "2024-03" || payload.TotalCents != 10000 {
		t.Errorf("unexpected overdue payload: %+v", payload)
	}
}

func TestRecurringProcessor_ProcessMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, mv := range []core.CashMovement{
		{Type: core.Expense, Category: core.ExpenseOut, Amount: core.Money{Cents: 80000}, Month: 5, Year: 2024, Description: "Rent", Recurring: true},
		{Type: core.Income, Category: core.OtherIncome, Amount: core.Money{Cents: 1000}, Month: 5, Year: 2024, Description: "Raffle"},
	} {
		if _, err := env.store.InsertMovement(ctx, mv); err != nil {
			t.Fatal(err)
		}
	}

	p := NewRecurringProcessor(env.store, 1)
	n, err := p.ProcessMonth(ctx, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recurring copy, got %d", n)
	}
	june, _ := env.store.ListMovements(ctx, ports.CashFilter{Month: 6, Year: 2024})
	if len(june) != 1 || june[0].Description != "Rent" || !june[0].Recurring {
		t.Errorf("unexpected June movements: %+v", june)
	}

	n, _ = p.ProcessMonth(ctx, fixedNow)
	if n != 0 {
		t.Errorf("second run should create nothing, got %d", n)
	}
}

func TestRecurringProcessor_IsDue(t *testing.T) {
	tests := []struct {
		name string
		day  int
		now  time.Time
		want bool
	}{
		{"before day", 20, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), false},
		{"on day", 15, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), true},
		{"clamped to month end", 31, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"january reads december", 1, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRecurringProcessor(nil, tt.day)
			if got := p.isDue(tt.now); got != tt.want {
				t.Errorf("isDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecurringProcessor_NotInitialized(t *testing.T) {
	if _, err := NewRecurringProcessor(nil, 1).ProcessMonth(context.Background(), fixedNow); err == nil {
		t.Error("expected error without a store")
	}
}

func TestDefaultMaintenanceConfig(t *testing.T) {
	config := DefaultMaintenanceConfig()
	if config.Interval != time.Hour {
		t.Errorf("expected Interval 1h, got %v", config.Interval)
	}
	if config.ExportEvery != 6 {
		t.Errorf("expected ExportEvery 6, got %d", config.ExportEvery)
	}
}

func TestMaintenanceProcessor_IsRunning(t *testing.T) {
	processor := NewMaintenanceProcessor(nil, nil, nil, nil, nil, nil, DefaultMaintenanceConfig())
	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestMaintenanceProcessor_StartTwice(t *testing.T) {
	processor := NewMaintenanceProcessor(nil, nil, nil, nil, nil, nil, MaintenanceConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestMaintenanceProcessor_StopNotRunning(t *testing.T) {
	processor := NewMaintenanceProcessor(nil, nil, nil, nil, nil, nil, DefaultMaintenanceConfig())
	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop on idle processor should be a no-op, got %v", err)
	}
}

func TestMaintenanceProcessor_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.InsertDuesBatch(ctx, []core.Dues{
		{MemberID: env.member, Month: 3, Year: 2024, Amount: core.Money{Cents: 100}, Status: core.DuesPending, DueDate: core.NewDate(2024, 3, 10)},
		{MemberID: env.member, Month: 4, Year: 2024, Amount: core.Money{Cents: 100}, Status: core.DuesPending, DueDate: core.NewDate(2024, 4, 10)},
	})
	if err != nil {
		t.Fatal(err)
	}

	reports := NewReportService(env.store, core.DefaultAlertPolicy())
	exporter := &fakeExporter{}
	p := NewMaintenanceProcessor(
		NewOverdueSweeper(env.store),
		NewRecurringProcessor(env.store, 1),
		NewAlertScanner(reports, env.pub),
		reports,
		NewCashService(env.store, env.auth, nil),
		exporter,
		MaintenanceConfig{Interval: time.Hour, ExportEvery: 2},
	)
	p.now = func() time.Time { return fixedNow }

	res := p.RunOnce(ctx)
	if res.MarkedOverdue != 2 {
		t.Errorf("MarkedOverdue = %d, want 2", res.MarkedOverdue)
	}
	// the sweep runs before the scan, so the fresh overdue rows are critical
	if env.pub.kinds()[amqp.KindDuesOverdue] != 1 {
		t.Errorf("expected a dues.overdue event, got %v", env.pub.kinds())
	}
	if res.Exported != 4 || len(exporter.titles) != 4 {
		t.Errorf("expected 4 exported tables, got %d (%v)", res.Exported, exporter.titles)
	}

	res = p.RunOnce(ctx)
	if res.Exported != 0 {
		t.Errorf("second pass should skip export, got %d", res.Exported)
	}
	res = p.RunOnce(ctx)
	if res.Exported != 4 {
		t.Errorf("third pass should export again, got %d", res.Exported)
	}
}

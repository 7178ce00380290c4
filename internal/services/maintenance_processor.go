package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lodge/internal/export"
)

// TableExporter publishes a report table somewhere outside the service.
type TableExporter interface {
	Export(ctx context.Context, t export.Table) error
}

// MaintenanceConfig holds configuration for the maintenance processor
type MaintenanceConfig struct {
	// Interval is how often a maintenance pass runs (default: 1h)
	Interval time.Duration

	// ExportEvery runs the report export on every Nth pass (default: 6)
	ExportEvery int
}

// DefaultMaintenanceConfig returns sensible defaults
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Interval:    1 * time.Hour,
		ExportEvery: 6,
	}
}

// MaintenanceProcessor periodically sweeps overdue dues, copies recurring
// movements, scans for alerts and mirrors reports to an exporter.
type MaintenanceProcessor struct {
	sweeper   *OverdueSweeper
	recurring *RecurringProcessor
	scanner   *AlertScanner
	reports   *ReportService
	cash      *CashService
	exporter  TableExporter
	config    MaintenanceConfig
	now       func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	passes  int
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMaintenanceProcessor creates a new processor. Any collaborator may be
// nil, in which case its step is skipped.
func NewMaintenanceProcessor(
	sweeper *OverdueSweeper,
	recurring *RecurringProcessor,
	scanner *AlertScanner,
	reports *ReportService,
	cash *CashService,
	exporter TableExporter,
	config MaintenanceConfig,
) *MaintenanceProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultMaintenanceConfig().Interval
	}
	if config.ExportEvery <= 0 {
		config.ExportEvery = DefaultMaintenanceConfig().ExportEvery
	}
	return &MaintenanceProcessor{
		sweeper:   sweeper,
		recurring: recurring,
		scanner:   scanner,
		reports:   reports,
		cash:      cash,
		exporter:  exporter,
		config:    config,
		now:       time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *MaintenanceProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("maintenance processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Maintenance processor started",
		"interval", p.config.Interval,
		"export_every", p.config.ExportEvery,
		"exporter", p.exporter != nil)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *MaintenanceProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Maintenance processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Maintenance processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *MaintenanceProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MaintenanceProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	p.RunOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// PassResult summarizes one maintenance pass.
type PassResult struct {
	MarkedOverdue    int
	RecurringCreated int
	Alerts           int
	Exported         int
}

// RunOnce performs a single pass. Step failures are logged and do not stop
// later steps.
func (p *MaintenanceProcessor) RunOnce(ctx context.Context) PassResult {
	var res PassResult
	now := p.now()

	if p.sweeper != nil {
		n, err := p.sweeper.Sweep(ctx, now)
		if err != nil {
			slog.ErrorContext(ctx, "Overdue sweep failed", "error", err)
		}
		res.MarkedOverdue = n
	}

	if p.recurring != nil {
		n, err := p.recurring.ProcessMonth(ctx, now)
		if err != nil {
			slog.ErrorContext(ctx, "Recurring movement processing failed", "error", err)
		}
		res.RecurringCreated = n
	}

	if p.scanner != nil {
		scan, err := p.scanner.Scan(ctx, now)
		if err != nil {
			slog.ErrorContext(ctx, "Alert scan failed", "error", err)
		}
		res.Alerts = len(scan.Absences) + len(scan.Overdue)
	}

	p.mu.Lock()
	p.passes++
	exportDue := (p.passes-1)%p.config.ExportEvery == 0
	p.mu.Unlock()

	if exportDue && p.exporter != nil {
		res.Exported = p.exportReports(ctx, now.Year())
	}
	return res
}

func (p *MaintenanceProcessor) exportReports(ctx context.Context, year int) int {
	var tables []export.Table
	if p.reports != nil {
		if rep, err := p.reports.OverdueReport(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to build overdue report", "error", err)
		} else {
			tables = append(tables, export.OverdueTable(rep.Groups))
		}
		if recs, err := p.reports.PaymentReport(ctx, year); err != nil {
			slog.ErrorContext(ctx, "Failed to build payment report", "error", err)
		} else {
			tables = append(tables, export.PaymentTable(year, recs))
		}
		if sums, err := p.reports.AttendanceReport(ctx, ReportPeriod{}); err != nil {
			slog.ErrorContext(ctx, "Failed to build attendance report", "error", err)
		} else {
			tables = append(tables, export.AttendanceTable(sums))
		}
	}
	if p.cash != nil {
		if bals, err := p.cash.YearBalances(ctx, year); err != nil {
			slog.ErrorContext(ctx, "Failed to build balance report", "error", err)
		} else {
			tables = append(tables, export.BalanceTable(year, bals))
		}
	}

	exported := 0
	for _, t := range tables {
		if err := p.exporter.Export(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Report export failed", "table", t.Title, "error", err)
			continue
		}
		exported++
	}
	return exported
}

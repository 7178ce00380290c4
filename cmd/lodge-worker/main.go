package main

import (
	"context"
	"errors"
	"os"
	"time"

	"lodge/internal/cli"
	"lodge/internal/core"
	"lodge/internal/export"
	"lodge/internal/services"
	"lodge/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap("lodge-worker")

	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is private to this process, the worker will not see API writes")
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer res.Close()

	var exporter services.TableExporter
	if cfg.SheetsEnabled() {
		sx, err := export.NewSheetsExporter(context.Background(), export.SheetsConfig{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = sx
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var pub services.Publisher
	if res.Events != nil {
		pub = res.Events
	}

	store := res.Backend
	authz := services.NewAuthorizer(store)
	reports := services.NewReportService(store, core.AlertPolicy{
		WarnAfterDays:     cfg.AlertWarnDays,
		CriticalAfterDays: cfg.AlertCriticalDays,
	})
	cash := services.NewCashService(store, authz, pub)

	processor := services.NewMaintenanceProcessor(
		services.NewOverdueSweeper(store),
		services.NewRecurringProcessor(store, 1),
		services.NewAlertScanner(reports, pub),
		reports,
		cash,
		exporter,
		services.MaintenanceConfig{Interval: cfg.SweepInterval},
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Maintenance processor shutdown error", "error", err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start maintenance processor", "error", err)
		os.Exit(1)
	}

	if res.Events != nil {
		events := worker.NewEventWorker(reports, cash, exporter)
		go func() {
			err := res.Events.Consume(ctx, events.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event consumption failed", "error", err)
			}
			st := events.Stats()
			logger.Info("Event consumer stopped",
				"handled", st.Handled,
				"exported", st.Exported,
				"alerts", st.Alerts,
				"skipped", st.Skipped)
		}()
	} else {
		logger.Info("Skipping event consumption - no AMQP_URL provided")
	}

	<-done
	logger.Info("Worker stopped")
}

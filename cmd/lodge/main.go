package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"lodge/internal/auth"
	"lodge/internal/cli"
	"lodge/internal/core"
	apphttp "lodge/internal/http"
	"lodge/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap("lodge")

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer res.Close()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	// A nil *amqp.Client must not end up inside the interface.
	var pub services.Publisher
	if res.Events != nil {
		pub = res.Events
	}

	store := res.Backend
	authz := services.NewAuthorizer(store)
	svc := apphttp.Services{
		Roster: services.NewRosterService(store, authz),
		Dues:   services.NewDuesService(store, authz, pub, cfg.DuesDueDay),
		Cash:   services.NewCashService(store, authz, pub),
		Reports: services.NewReportService(store, core.AlertPolicy{
			WarnAfterDays:     cfg.AlertWarnDays,
			CriticalAfterDays: cfg.AlertCriticalDays,
		}),
		Polls: services.NewPollService(store, authz),
	}

	srvCfg := apphttp.Config{
		Addr:      ":" + cfg.Port,
		Verifier:  verifier,
		Logger:    logger,
		Formatter: core.NewFormatter(cfg.Locale, cfg.Currency),
	}
	if res.Pinger != nil {
		srvCfg.Pinger = res.Pinger
	}
	srv, err := apphttp.NewServer(srvCfg, svc)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	if res.AdminID != 0 {
		// The memory backend starts with one administrator and no way to log
		// in, so hand out a development token.
		token, err := verifier.IssueToken(auth.Identity{MemberID: res.AdminID, Email: cfg.SeedAdminEmail}, 24*time.Hour)
		if err != nil {
			logger.Warn("Failed to issue development token", "error", err)
		} else {
			logger.Info("Development admin token issued", "member_id", res.AdminID, "token", token)
		}
	}

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting lodge server", "port", cfg.Port, "backend", cfg.DataBackend, "events", pub != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

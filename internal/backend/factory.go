package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lodge/internal/amqp"
	"lodge/internal/core"
	"lodge/internal/memory"
	"lodge/internal/storage"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store and, when a broker URL is set,
// an AMQP client. A broker that cannot be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLBackend(ctx, config, func() (*storage.Repository, error) {
			return storage.NewSQLiteRepository(config.SQLiteDBPath)
		})
	case PostgresBackend:
		res, err = f.createSQLBackend(ctx, config, func() (*storage.Repository, error) {
			return storage.NewPostgresRepository(ctx, config.DatabaseURL)
		})
	case MemoryBackend:
		res, err = f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			res.Events = client
			storeCleanup := res.Cleanup
			res.Cleanup = func() error {
				var errs []error
				errs = append(errs, client.Close())
				if storeCleanup != nil {
					errs = append(errs, storeCleanup())
				}
				return errors.Join(errs...)
			}
		}
	}
	return res, nil
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, config Config, open func() (*storage.Repository, error)) (*BackendResult, error) {
	repo, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", config.Type, err)
	}
	f.logger.InfoContext(ctx, "Initialized SQL backend", "type", config.Type.String())
	return &BackendResult{Backend: repo, Pinger: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	fee, err := core.ParseMoney("seed_monthly_fee", config.SeedMonthlyFee)
	if err != nil {
		return nil, fmt.Errorf("memory backend: %w", err)
	}
	name := config.SeedAdminName
	if name == "" {
		name = "Administrator"
	}
	store, adminID := memory.NewWithAdmin(name, config.SeedAdminEmail, fee)

	f.logger.InfoContext(ctx, "Initialized memory backend", "admin_id", adminID, "monthly_fee_cents", fee.Cents)
	return &BackendResult{Backend: store, AdminID: adminID}, nil
}

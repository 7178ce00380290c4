package backend

import (
	"context"

	"lodge/internal/amqp"
	"lodge/internal/ports"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend ports.Backend
	// Events is nil when no broker is configured.
	Events *amqp.Client
	// Pinger is nil for backends without a remote dependency.
	Pinger Pinger
	// AdminID is the seeded administrator of the memory backend, 0 otherwise.
	AdminID int64
	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	SeedAdminName  string
	SeedAdminEmail string
	SeedMonthlyFee string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

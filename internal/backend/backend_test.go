package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"lodge/internal/config"
	"lodge/internal/ports"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	got, err := FromAppConfig(&config.Config{
		DataBackend:    "postgres",
		DatabaseURL:    "postgres://localhost/lodge",
		AMQPURL:        "amqp://localhost",
		AMQPExchange:   "lodge",
		AMQPQueue:      "lodge_events",
		SeedAdminEmail: "admin@lodge.local",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != PostgresBackend || got.DatabaseURL != "postgres://localhost/lodge" || got.AMQPQueue != "lodge_events" {
		t.Errorf("unexpected backend config: %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"memory ok", Config{Type: MemoryBackend, SeedAdminEmail: "a@b.c"}, ""},
		{"memory without admin", Config{Type: MemoryBackend}, "seed admin email"},
		{"sqlite without path", Config{Type: SQLiteBackend}, "SQLite database path"},
		{"postgres without url", Config{Type: PostgresBackend}, "database URL"},
		{"unknown type", Config{Type: "sheets"}, "invalid backend type"},
		{"amqp without queue", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db", AMQPURL: "amqp://h", AMQPExchange: "e"}, "AMQP exchange and queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:           MemoryBackend,
		SeedAdminEmail: "admin@lodge.local",
		SeedMonthlyFee: "75,00",
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	if res.AdminID == 0 || res.Pinger != nil || res.Events != nil {
		t.Errorf("unexpected result: %+v", res)
	}
	caps, err := res.Backend.Capabilities(ctx, res.AdminID)
	if err != nil || !caps.Admin {
		t.Errorf("seeded member should be admin: %+v, %v", caps, err)
	}
	members, err := res.Backend.ListMembers(ctx, ports.ListMembersFilter{})
	if err != nil || len(members) != 1 || members[0].Email != "admin@lodge.local" {
		t.Errorf("ListMembers = %+v, %v", members, err)
	}
}

func TestFactory_MemoryBackendBadFee(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:           MemoryBackend,
		SeedAdminEmail: "admin@lodge.local",
		SeedMonthlyFee: "-1",
	})
	if err == nil {
		t.Fatal("expected error for negative fee")
	}
}

func TestFactory_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "lodge.db"),
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	if res.Pinger == nil {
		t.Fatal("sqlite backend should expose a pinger")
	}
	if err := res.Pinger.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestBackendResult_CloseNil(t *testing.T) {
	var res *BackendResult
	if err := res.Close(); err != nil {
		t.Errorf("Close on nil result = %v", err)
	}
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lodge/internal/amqp"
	"lodge/internal/core"
	"lodge/internal/export"
	"lodge/internal/memory"
	"lodge/internal/ports"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev *amqp.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) kinds() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, ev := range f.events {
		out[ev.Kind]++
	}
	return out
}

type fakeExporter struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeExporter) Export(_ context.Context, t export.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, t.Title)
	return nil
}

// countingRoles counts role lookups and can fail them.
type countingRoles struct {
	mu    sync.Mutex
	calls int
	admin map[int64]bool
	err   error
}

func (c *countingRoles) Capabilities(_ context.Context, id int64) (ports.Capabilities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return ports.Capabilities{}, c.err
	}
	return ports.Capabilities{Admin: c.admin[id]}, nil
}

type testEnv struct {
	store  *memory.Store
	admin  int64
	member int64
	auth   *Authorizer
	pub    *fakePublisher
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	store, admin := memory.NewWithAdmin("Admin", "admin@example.com", core.Money{Cents: 5000})
	store.SetClock(func() time.Time { return fixedNow })
	member, err := store.CreateMember(context.Background(), core.Member{
		Name: "Bruno", Email: "bruno@example.com", Degree: core.Fellow, Active: true,
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return testEnv{store: store, admin: admin, member: member, auth: NewAuthorizer(store), pub: &fakePublisher{}}
}

func TestAuthorizer_RequireAdmin(t *testing.T) {
	roles := &countingRoles{admin: map[int64]bool{1: true}}
	a := NewAuthorizer(roles)
	ctx := context.Background()

	if err := a.RequireAdmin(ctx, 1, "do things"); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	err := a.RequireAdmin(ctx, 2, "do things")
	var nae *core.NotAuthorizedError
	if !errors.As(err, &nae) || nae.MemberID != 2 || nae.Action != "do things" {
		t.Fatalf("expected NotAuthorizedError for member 2, got %v", err)
	}
	if !errors.Is(err, core.ErrNotAuthorized) {
		t.Error("error should match ErrNotAuthorized")
	}
	if err := a.RequireAdmin(ctx, 0, "x"); !errors.Is(err, core.ErrNotAuthorized) {
		t.Errorf("anonymous actor should be rejected, got %v", err)
	}
}

func TestAuthorizer_CachesPerRequest(t *testing.T) {
	roles := &countingRoles{admin: map[int64]bool{1: true}}
	a := NewAuthorizer(roles)
	ctx := WithCapabilityCache(context.Background())

	for i := 0; i < 3; i++ {
		if err := a.RequireAdmin(ctx, 1, "x"); err != nil {
			t.Fatal(err)
		}
	}
	if roles.calls != 1 {
		t.Errorf("expected a single lookup per request, got %d", roles.calls)
	}

	_ = a.RequireAdmin(context.Background(), 1, "x")
	_ = a.RequireAdmin(context.Background(), 1, "x")
	if roles.calls != 3 {
		t.Errorf("uncached contexts should look up each time, got %d calls", roles.calls)
	}
}

func TestAuthorizer_SharedCacheAcrossGoroutines(t *testing.T) {
	roles := &countingRoles{admin: map[int64]bool{1: true}}
	a := NewAuthorizer(roles)
	ctx := WithCapabilityCache(context.Background())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			if actor == 1 {
				errs <- a.RequireAdmin(ctx, actor, "x")
				return
			}
			if err := a.RequireAdmin(ctx, actor, "x"); !errors.Is(err, core.ErrNotAuthorized) {
				errs <- err
			}
		}(int64(i%2 + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	caps, err := a.Capabilities(ctx, 1)
	if err != nil || !caps.Admin {
		t.Errorf("Capabilities(1) = %+v, %v", caps, err)
	}
}

func TestAuthorizer_LookupFailureIsUpstream(t *testing.T) {
	a := NewAuthorizer(&countingRoles{err: errors.New("connection refused")})
	err := a.RequireAdmin(context.Background(), 1, "x")
	if !errors.Is(err, core.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestValidateRequest_UsesJSONNames(t *testing.T) {
	err := validateRequest(DuesBatchRequest{MemberID: 1, Months: []int{13}, Year: 2024, Status: core.DuesPending})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "months[0]" {
		t.Errorf("field = %q, want months[0]", ve.Field)
	}
}

func TestPublishEvent_ToleratesFailures(t *testing.T) {
	ctx := context.Background()
	publishEvent(ctx, nil, amqp.KindCashRecorded, amqp.CashRecordedPayload{})

	p := &fakePublisher{err: errors.New("circuit breaker is open")}
	publishEvent(ctx, p, amqp.KindCashRecorded, amqp.CashRecordedPayload{})
	if len(p.events) != 0 {
		t.Error("failed publish should not record an event")
	}
}

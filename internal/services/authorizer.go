package services

import (
	"context"
	"fmt"
	"sync"

	"lodge/internal/core"
	"lodge/internal/ports"
)

type capsKey struct{ memberID int64 }

type capsCache struct {
	mu       sync.Mutex
	byMember map[int64]ports.Capabilities
}

func (c *capsCache) get(memberID int64) (ports.Capabilities, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	caps, ok := c.byMember[memberID]
	return caps, ok
}

func (c *capsCache) put(memberID int64, caps ports.Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byMember[memberID] = caps
}

// WithCapabilityCache scopes role lookups to one request: the first lookup
// for a member is reused by every later mutation gate in the same context.
func WithCapabilityCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, capsKey{}, &capsCache{byMember: make(map[int64]ports.Capabilities)})
}

// Authorizer is the single place deciding what a member may do.
type Authorizer struct {
	roles ports.RoleLookup
}

func NewAuthorizer(roles ports.RoleLookup) *Authorizer {
	return &Authorizer{roles: roles}
}

// Capabilities returns the member's capability flags.
func (a *Authorizer) Capabilities(ctx context.Context, memberID int64) (ports.Capabilities, error) {
	cache, _ := ctx.Value(capsKey{}).(*capsCache)
	if cache != nil {
		if caps, ok := cache.get(memberID); ok {
			return caps, nil
		}
	}
	caps, err := a.roles.Capabilities(ctx, memberID)
	if err != nil {
		return ports.Capabilities{}, core.Upstream("lookup capabilities", err)
	}
	if cache != nil {
		cache.put(memberID, caps)
	}
	return caps, nil
}

// RequireAdmin fails with *core.NotAuthorizedError unless actor is an admin.
func (a *Authorizer) RequireAdmin(ctx context.Context, actor int64, action string) error {
	if actor <= 0 {
		return &core.NotAuthorizedError{MemberID: actor, Action: action}
	}
	caps, err := a.Capabilities(ctx, actor)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", action, err)
	}
	if !caps.Admin {
		return &core.NotAuthorizedError{MemberID: actor, Action: action}
	}
	return nil
}

// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package identity

import (
	"context"
	"sync"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/ctxkey"
)

// # Request Scope

// Scope is the per-request container for the tenant and principal.
//
// A Scope is created by [Begin] and belongs to exactly one request. Once its
// release function runs the scope is empty and refuses further writes, so a
// goroutine that outlives the request cannot observe or resurrect its identity.
type Scope struct {
	mu        sync.RWMutex
	tenant    TenantID
	tenantSet bool
	principal *Principal
	released  bool
}

// Begin installs a fresh [Scope] into ctx and returns the derived context with a
// release function. Callers must defer release; it clears the scope and is safe
// to call more than once.
func Begin(ctx context.Context) (context.Context, func()) {
	scope := &Scope{}
	return context.WithValue(ctx, ctxkey.KeyScope, scope), scope.release
}

// ScopeFrom returns the request scope stored in ctx, or nil outside a request.
func ScopeFrom(ctx context.Context) *Scope {
	scope, _ := ctx.Value(ctxkey.KeyScope).(*Scope)
	return scope
}

// SetTenant records the tenant for the request. It is a no-op after release.
func (s *Scope) SetTenant(id TenantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.tenant = id
	s.tenantSet = true
}

// SetPrincipal records the authenticated principal. It is a no-op after release.
func (s *Scope) SetPrincipal(principal Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.principal = &principal
}

// Tenant returns the recorded tenant and whether one was set.
func (s *Scope) Tenant() (TenantID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant, s.tenantSet
}

// Principal returns a copy of the recorded principal and whether one was set.
func (s *Scope) Principal() (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return Principal{}, false
	}
	return *s.principal, true
}

// Released reports whether the scope has been cleared.
func (s *Scope) Released() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released
}

func (s *Scope) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant = 0
	s.tenantSet = false
	s.principal = nil
	s.released = true
}

// # Accessors

// Tenant returns the tenant of the current request, falling back to [DefaultTenantID].
// It never reports an unset tenant.
func Tenant(ctx context.Context) TenantID {
	return TenantOrDefault(ctx, DefaultTenantID)
}

// TenantOrDefault returns the tenant of the current request, or fallback when the
// request has no scope, the scope has no tenant, or the scope was released.
func TenantOrDefault(ctx context.Context, fallback TenantID) TenantID {
	scope := ScopeFrom(ctx)
	if scope == nil {
		return fallback
	}
	if id, ok := scope.Tenant(); ok {
		return id
	}
	return fallback
}

// PrincipalFrom returns the authenticated principal of the current request.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	scope := ScopeFrom(ctx)
	if scope == nil {
		return Principal{}, false
	}
	return scope.Principal()
}

// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package authz evaluates declarative login and permission requirements against
the principal of the current request.

A [Declaration] is attached to a route group or a single operation at
registration time. When both exist, the operation declaration replaces the
group one entirely; the two are never merged.

Evaluation only reads the request scope. It never writes to it.
*/
package authz

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/ctxutil"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/metrics"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/respond"
)

// # Declarations

// Combinator aggregates several required permission codes into one decision.
type Combinator string

const (
	// All requires every listed code.
	All Combinator = "ALL"

	// Any requires at least one listed code.
	Any Combinator = "ANY"
)

// Declaration is the login/permission requirement of an operation or group.
//
// A declaration that lists permissions implies RequireLogin.
type Declaration struct {
	RequireLogin bool
	Permissions  []string
	Combinator   Combinator
}

// Login declares that an authenticated principal is required.
func Login() *Declaration {
	return &Declaration{RequireLogin: true, Combinator: All}
}

// AllOf declares that every code is required.
func AllOf(codes ...string) *Declaration {
	return &Declaration{RequireLogin: true, Permissions: codes, Combinator: All}
}

// AnyOf declares that at least one code is required.
func AnyOf(codes ...string) *Declaration {
	return &Declaration{RequireLogin: true, Permissions: codes, Combinator: Any}
}

// String renders the declaration for logs.
func (d *Declaration) String() string {
	if d == nil {
		return "none"
	}
	if len(d.Permissions) == 0 {
		return fmt.Sprintf("login=%t", d.RequireLogin)
	}
	return fmt.Sprintf("%s(%s)", d.combinator(), strings.Join(d.Permissions, ","))
}

// Validate rejects declarations with an unknown combinator or blank codes.
func (d *Declaration) Validate() error {
	if d == nil {
		return nil
	}
	switch d.Combinator {
	case "", All, Any:
	default:
		return fmt.Errorf("authz: unknown combinator %q", d.Combinator)
	}
	for _, code := range d.Permissions {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("authz: blank permission code in %s", d)
		}
	}
	return nil
}

func (d *Declaration) combinator() Combinator {
	if d.Combinator == "" {
		return All
	}
	return d.Combinator
}

// Effective returns the declaration that governs an operation: the operation's
// own declaration when present, otherwise the group's.
func Effective(group, operation *Declaration) *Declaration {
	if operation != nil {
		return operation
	}
	return group
}

// # Evaluation

/*
Evaluate decides whether the current principal satisfies decl.

Returns:
  - nil: allowed (or decl is nil)
  - UNAUTHENTICATED: login required and no principal present
  - FORBIDDEN: the permission combinator is not satisfied
*/
func Evaluate(ctx context.Context, decl *Declaration) error {
	if decl == nil {
		return nil
	}

	principal, ok := identity.PrincipalFrom(ctx)
	needsLogin := decl.RequireLogin || len(decl.Permissions) > 0
	if needsLogin && !ok {
		return apperr.Unauthenticated("Authentication required")
	}
	if len(decl.Permissions) == 0 {
		return nil
	}

	if !satisfied(principal, decl) {
		return apperr.Forbidden("Insufficient permissions")
	}
	return nil
}

func satisfied(principal identity.Principal, decl *Declaration) bool {
	switch decl.combinator() {
	case Any:
		for _, code := range decl.Permissions {
			if principal.HasPermission(code) {
				return true
			}
		}
		return false
	default:
		for _, code := range decl.Permissions {
			if !principal.HasPermission(code) {
				return false
			}
		}
		return true
	}
}

// Run evaluates decl against ctx and invokes fn only when allowed.
//
// It is the enforcement point for work that does not pass through the HTTP
// pipeline (jobs, service-to-service calls) but carries a request context.
func Run(ctx context.Context, decl *Declaration, fn func(context.Context) error) error {
	if err := Evaluate(ctx, decl); err != nil {
		recordDenial(err)
		return err
	}
	return fn(ctx)
}

// # HTTP Enforcement

// Require returns middleware enforcing decl before the handler runs.
//
// It panics when decl is invalid, so a malformed declaration fails while the
// routes are built rather than on the first request.
func Require(decl *Declaration) func(http.Handler) http.Handler {
	if err := decl.Validate(); err != nil {
		panic(err)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if err := Evaluate(request.Context(), decl); err != nil {
				recordDenial(err)
				ctxutil.GetLogger(request.Context()).Warn("authz_denied",
					"code", apperr.CodeOf(err),
					"declaration", decl.String(),
				)
				respond.Error(writer, request, err)
				return
			}
			if decl != nil {
				metrics.RecordStage(metrics.StagePermission, metrics.OutcomeAllowed)
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// Guard binds a group-level declaration so each operation can be registered
// with its own override.
//
// # Usage
//
//	guard := authz.Guard{Default: authz.Login()}
//	router.With(guard.For(nil)).Get("/me", ...)
//	router.With(guard.For(authz.AllOf("AUTH_TOKEN_REVOKE"))).Post("/revocations/{tokenId}", ...)
type Guard struct {
	Default *Declaration
}

// For returns middleware enforcing the effective declaration of an operation.
func (g Guard) For(operation *Declaration) func(http.Handler) http.Handler {
	return Require(Effective(g.Default, operation))
}

func recordDenial(err error) {
	outcome := metrics.OutcomeRejected
	if apperr.CodeOf(err) == apperr.CodeUnauthenticated {
		outcome = "unauthenticated"
	}
	metrics.RecordStage(metrics.StagePermission, outcome)
}

// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/ctxutil"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/metrics"
	requestutil "github.com/leozheng-Miao/leomall-sub001/internal/platform/request"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/respond"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
)

// # Request Scope

// Scope installs the per-request identity container and releases it when the
// request ends, whether the handler returns, fails, panics or is cancelled.
func Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx, release := identity.Begin(request.Context())
		defer release()

		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

// withScope makes sure a stage always has a scope to write into, installing a
// short-lived one when [Scope] is not mounted.
func withScope(writer http.ResponseWriter, request *http.Request, next func(http.ResponseWriter, *http.Request)) {
	if identity.ScopeFrom(request.Context()) != nil {
		next(writer, request)
		return
	}
	Scope(http.HandlerFunc(next)).ServeHTTP(writer, request)
}

// # Tenant Resolution

// TenantOptions configures [ResolveTenant].
type TenantOptions struct {
	// Header carries the tenant marker. Defaults to X-Tenant-Id.
	Header string

	// Default is stored when the marker is absent.
	Default identity.TenantID
}

/*
ResolveTenant reads the tenant marker and records it in the request scope.

Flow:
 1. Marker absent: the scope gets opts.Default (logged at Debug with tenant_defaulted).
 2. Marker present and a positive decimal: the scope gets the parsed id.
 3. Marker malformed: the request is rejected with BAD_TENANT_ID before any handler runs.

It runs for every request and has no exemptions.
*/
func ResolveTenant(opts TenantOptions) func(http.Handler) http.Handler {
	header := opts.Header
	if header == "" {
		header = constants.DefaultTenantHeader
	}
	fallback := opts.Default
	if fallback <= 0 {
		fallback = identity.DefaultTenantID
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			withScope(writer, request, func(writer http.ResponseWriter, request *http.Request) {
				ctx := request.Context()
				scope := identity.ScopeFrom(ctx)
				raw := strings.TrimSpace(request.Header.Get(header))

				// 1. Absent marker
				if raw == "" {
					scope.SetTenant(fallback)
					metrics.RecordStage(metrics.StageTenant, metrics.OutcomeDefaulted)
					ctxutil.GetLogger(ctx).DebugContext(ctx, "tenant_defaulted",
						slog.Int64(constants.LogKeyTenantID, int64(fallback)),
						slog.Bool(constants.LogKeyTenantDefaulted, true),
					)
					ctx = ctxutil.WithLogAttrs(ctx, slog.Int64(constants.LogKeyTenantID, int64(fallback)))
					next.ServeHTTP(writer, request.WithContext(ctx))
					return
				}

				// 2. Malformed marker
				tenant, err := identity.ParseTenantID(raw)
				if err != nil {
					metrics.RecordStage(metrics.StageTenant, metrics.OutcomeRejected)
					respond.Error(writer, request, apperr.BadTenantID(raw))
					return
				}

				// 3. Valid marker
				scope.SetTenant(tenant)
				metrics.RecordStage(metrics.StageTenant, metrics.OutcomeAllowed)
				ctx = ctxutil.WithLogAttrs(ctx, slog.Int64(constants.LogKeyTenantID, int64(tenant)))
				next.ServeHTTP(writer, request.WithContext(ctx))
			})
		})
	}
}

// # Authentication

// TokenVerifier validates bearer access tokens.
//
// [sec.TokenService] satisfies it; tests inject fakes.
type TokenVerifier interface {
	ValidateAccess(ctx context.Context, token string) (*sec.TokenClaims, error)
}

/*
Authenticate extracts and validates the bearer token and records the principal.

Flow:
 1. Exempt route: the token is never read.
 2. Token absent: MISSING_TOKEN on required routes, anonymous on optional ones.
 3. Token present: validate it; on success store the principal built from its claims.
 4. Validation failure: the specific kind (TOKEN_EXPIRED, TOKEN_INVALID, ...) on
    required routes, anonymous on optional ones.

Parameters:
  - verifier: TokenVerifier
  - policy: RoutePolicy (exempt and optional patterns)
*/
func Authenticate(verifier TokenVerifier, policy RoutePolicy) func(http.Handler) http.Handler {
	matcher := policy.compile()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			withScope(writer, request, func(writer http.ResponseWriter, request *http.Request) {
				ctx := request.Context()
				mode := matcher.modeOf(routingPath(request))

				// 1. Exempt
				if mode == ModeExempt {
					metrics.RecordStage(metrics.StageAuthenticate, metrics.OutcomeExempt)
					next.ServeHTTP(writer, request)
					return
				}

				reject := func(err error) {
					if mode == ModeOptional {
						metrics.RecordStage(metrics.StageAuthenticate, metrics.OutcomeAnonymous)
						ctxutil.GetLogger(ctx).DebugContext(ctx, "auth_optional_ignored", slog.String("code", apperr.CodeOf(err)))
						next.ServeHTTP(writer, request)
						return
					}
					metrics.RecordStage(metrics.StageAuthenticate, metrics.OutcomeRejected)
					ctxutil.GetLogger(ctx).WarnContext(ctx, "auth_rejected", slog.String("code", apperr.CodeOf(err)))
					respond.Error(writer, request, err)
				}

				// 2. Extraction
				token, err := requestutil.BearerToken(request)
				if err != nil {
					reject(err)
					return
				}
				if token == "" {
					reject(apperr.MissingToken())
					return
				}

				// 3. Validation
				claims, err := verifier.ValidateAccess(ctx, token)
				if err != nil {
					code := apperr.CodeOf(err)
					if code == "" {
						err = apperr.Internal(err)
						code = apperr.CodeInternal
					}
					metrics.RecordTokenValidation(code)
					reject(err)
					return
				}
				metrics.RecordTokenValidation("ok")

				// 4. Context injection
				principal := claims.Principal()
				identity.ScopeFrom(ctx).SetPrincipal(principal)
				metrics.RecordStage(metrics.StageAuthenticate, metrics.OutcomeAllowed)
				ctx = ctxutil.WithLogAttrs(ctx, slog.String(constants.LogKeyUserID, principal.UserID()))
				next.ServeHTTP(writer, request.WithContext(ctx))
			})
		})
	}
}

// # Route Policy

// Mode is how a route participates in authentication.
type Mode int

const (
	// ModeRequired rejects requests without a valid token.
	ModeRequired Mode = iota

	// ModeOptional authenticates on a best-effort basis.
	ModeOptional

	// ModeExempt never reads the token.
	ModeExempt
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeOptional:
		return "optional"
	case ModeExempt:
		return "exempt"
	default:
		return "required"
	}
}

// BuiltinExemptPaths are exempt regardless of configuration.
var BuiltinExemptPaths = []string{
	constants.AuthRoutePrefix + "/login",
	constants.AuthRoutePrefix + "/refresh",
	"/health",
	"/ready",
	"/metrics",
	"/docs/**",
	"/error",
}

// RoutePolicy lists the route patterns that are exempt from or optional for
// authentication. Every other route requires it.
//
// Patterns are exact paths, [path.Match] globs ("/products/*"), or a prefix
// followed by "/**" which matches the prefix and everything below it.
type RoutePolicy struct {
	Exempt   []string `yaml:"exempt"`
	Optional []string `yaml:"optional"`
}

// Mode reports how path participates in authentication. Exempt wins over optional.
//
// path is the routed form: percent-escapes such as %2F stay encoded.
func (p RoutePolicy) Mode(requestPath string) Mode {
	return p.compile().modeOf(requestPath)
}

type routeMatcher struct {
	exempt   []string
	optional []string
}

func (p RoutePolicy) compile() routeMatcher {
	exempt := make([]string, 0, len(BuiltinExemptPaths)+len(p.Exempt))
	exempt = append(exempt, BuiltinExemptPaths...)
	return routeMatcher{
		exempt:   appendPatterns(exempt, p.Exempt),
		optional: appendPatterns(nil, p.Optional),
	}
}

func appendPatterns(dst, patterns []string) []string {
	for _, pattern := range patterns {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			dst = append(dst, pattern)
		}
	}
	return dst
}

// modeOf classifies requestPath, given in the form the router dispatches on.
//
// A path with a dot segment is always required: path cleaning may hand it to
// a different route than the one it names.
func (m routeMatcher) modeOf(requestPath string) Mode {
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}
	if hasDotSegment(requestPath) {
		return ModeRequired
	}

	// Without dot segments, cleaning only collapses slashes.
	cleaned := path.Clean(requestPath)
	if matchAny(m.exempt, cleaned) {
		return ModeExempt
	}
	if matchAny(m.optional, cleaned) {
		return ModeOptional
	}
	return ModeRequired
}

// routingPath returns the path chi matches routes against: the raw path when
// the URL carries escapes such as %2F, otherwise the decoded path.
func routingPath(request *http.Request) string {
	if request.URL.RawPath != "" {
		return request.URL.RawPath
	}
	return request.URL.Path
}

func hasDotSegment(requestPath string) bool {
	for _, segment := range strings.Split(requestPath, "/") {
		if segment == "." || segment == ".." {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, requestPath string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, requestPath) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, requestPath string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
	}
	if pattern == requestPath {
		return true
	}
	matched, err := path.Match(pattern, requestPath)
	return err == nil && matched
}

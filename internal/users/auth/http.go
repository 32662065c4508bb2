// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/authz"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
	requestutil "github.com/leozheng-Miao/leomall-sub001/internal/platform/request"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/respond"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the session HTTP endpoints.
//
// # Scope
//
// Login and refresh are exempt from authentication; every other route here is
// declared with [authz.Guard] and bound with [requestutil.BindPrincipal].
type Handler struct {
	authService  *Service
	secureCookie bool
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, secureCookie bool) *Handler {
	return &Handler{authService: service, secureCookie: secureCookie}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /login                   : Authenticates and returns a token pair.
//   - POST /refresh                 : Rotates a refresh token.
//   - POST /logout                  : Revokes the caller's token family.
//   - GET  /me                      : Returns the caller's principal.
//   - POST /revocations/{tokenId}   : Revokes any token family (AUTH_TOKEN_REVOKE).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	guard := authz.Guard{Default: authz.Login()}
	router.With(guard.For(nil)).Post("/logout", requestutil.BindPrincipal(handler.logout))
	router.With(guard.For(nil)).Get("/me", requestutil.BindPrincipal(handler.me))
	router.With(guard.For(authz.AllOf(PermissionRevokeToken))).
		Post("/revocations/{tokenId}", requestutil.BindPrincipal(handler.revoke))

	return router
}

// # Request Payloads

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

/*
Login authenticates a user inside the request tenant and establishes a session.

POST /api/v1/auth/login

Request:
  - Body: loginRequest (Login, Password)

Response:
  - 200: Access token, refresh token and the principal
  - 401: UNAUTHORIZED: Invalid credentials
  - 403: FORBIDDEN: Account disabled
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldLogin, input.Login).
		Required(FieldPassword, input.Password).
		MaxLen(FieldLogin, input.Login, 255)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Tenant:   identity.Tenant(request.Context()),
		Login:    input.Login,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)
	respond.NoStore(writer)

	response := tokenResponse(session.TokenPair)
	response[FieldUser] = session.User
	respond.OK(writer, response)
}

/*
Refresh issues a new token pair from a refresh token.

POST /api/v1/auth/refresh

Description: Reads the refresh token from the cookie, falling back to the JSON
body. The presented token is single-use.

Response:
  - 200: New credentials
  - 401: MISSING_TOKEN, TOKEN_EXPIRED, TOKEN_INVALID, TOKEN_REVOKED or WRONG_TOKEN_TYPE
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := ""
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" && request.ContentLength != 0 {
		var input refreshRequest
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
		refreshToken = input.RefreshToken
	}

	pair, err := handler.authService.Refresh(request.Context(), refreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	respond.NoStore(writer)
	respond.OK(writer, tokenResponse(pair))
}

/*
Logout terminates the caller's session.

POST /api/v1/auth/logout

Description: Revokes the family of the bearer token (ending the paired refresh
token too) and clears the refresh cookie.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request, principal *identity.Principal) {
	token, err := requestutil.BearerToken(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), *principal, token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
Me returns the principal bound to the request.

GET /api/v1/auth/me
*/
func (handler *Handler) me(writer http.ResponseWriter, _ *http.Request, principal *identity.Principal) {
	respond.OK(writer, principal)
}

/*
Revoke revokes a token family on behalf of an operator.

POST /api/v1/auth/revocations/{tokenId}

Response:
  - 204: No Content
  - 400: VALIDATION_ERROR: Malformed token id
  - 403: FORBIDDEN: Missing AUTH_TOKEN_REVOKE
*/
func (handler *Handler) revoke(writer http.ResponseWriter, request *http.Request, principal *identity.Principal) {
	tokenID := requestutil.Param(request, "tokenId")

	validator := &validate.Validator{}
	validator.Required(FieldTokenID, tokenID).UUID(FieldTokenID, tokenID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RevokeToken(request.Context(), *principal, tokenID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Helpers

func tokenResponse(pair *sec.TokenPair) map[string]any {
	return map[string]any{
		FieldAccessToken:  pair.AccessToken,
		FieldRefreshToken: pair.RefreshToken,
		FieldTokenID:      pair.TokenID,
		FieldTokenType:    "Bearer",
		FieldExpiresIn:    int64(time.Until(pair.AccessTokenExpiresAt).Round(time.Second) / time.Second),
	}
}

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    value,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   handler.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

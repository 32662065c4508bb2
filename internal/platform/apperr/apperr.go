// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package apperr defines the centralized error handling framework for the Leomall
identity core.

It provides a rich error type that bridges the gap between low-level token, store,
and context failures and the status class a client finally observes.

Architecture:

  - AppError: A struct containing machine-readable Code and a client-safe message.
  - Taxonomy: One constructor per failure kind of the request pipeline
    (tenant resolution, authentication, permission evaluation, token issuance).
  - Mapping: Every kind maps deterministically to one HTTP status class.

Every error that leaves a pipeline stage or the token service is an [AppError], so
the internal kind is never silently downgraded to a generic failure.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Error Codes

const (
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeBadTenantID        = "BAD_TENANT_ID"
	CodeMissingToken       = "MISSING_TOKEN"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeTokenRevoked       = "TOKEN_REVOKED"
	CodeWrongTokenType     = "WRONG_TOKEN_TYPE"
	CodeForbidden          = "FORBIDDEN"
	CodeSigningFailed      = "TOKEN_SIGNING_FAILED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError is the canonical error type for the Leomall API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., token parser output).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "TOKEN_EXPIRED", "FORBIDDEN").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
	// RetryAfter is the Retry-After hint in seconds for RATE_LIMITED responses.
	RetryAfter int `json:"-"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an [*AppError] with the same Code.
//
// This lets callers match a failure kind against the exported sentinels
// (e.g. errors.Is(err, apperr.ErrTokenExpired)) regardless of message or cause.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// # Sentinels

// Sentinels for matching with [errors.Is]. Never return these directly; use the
// constructors so each failure gets its own message and cause.
var (
	ErrBadTenantID     = &AppError{Code: CodeBadTenantID}
	ErrMissingToken    = &AppError{Code: CodeMissingToken}
	ErrUnauthenticated = &AppError{Code: CodeUnauthenticated}
	ErrUnauthorized    = &AppError{Code: CodeUnauthorized}
	ErrTokenExpired    = &AppError{Code: CodeTokenExpired}
	ErrTokenInvalid    = &AppError{Code: CodeTokenInvalid}
	ErrTokenRevoked    = &AppError{Code: CodeTokenRevoked}
	ErrWrongTokenType  = &AppError{Code: CodeWrongTokenType}
	ErrForbidden       = &AppError{Code: CodeForbidden}
	ErrSigningFailed   = &AppError{Code: CodeSigningFailed}
)

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Account") // Returns "Account not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// BadTenantID creates a 400 [AppError] for a tenant marker that is present but malformed.
func BadTenantID(raw string) *AppError {
	return &AppError{
		Code:       CodeBadTenantID,
		Message:    fmt.Sprintf("Invalid tenant identifier %q", raw),
		HTTPStatus: http.StatusBadRequest,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfterSeconds,
	}
}

// # Authentication Errors (401)

// MissingToken creates a 401 [AppError] for a required route called without a bearer token.
func MissingToken() *AppError {
	return &AppError{
		Code:       CodeMissingToken,
		Message:    "Authentication token is missing",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Unauthenticated creates a 401 [AppError] for operations that demand a principal
// when none is present in the request scope.
func Unauthenticated(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthenticated,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Unauthorized creates a 401 [AppError] for credentials that were presented but rejected.
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenExpired creates a 401 [AppError] for a token past its expiry.
func TokenExpired(cause error) *AppError {
	return &AppError{
		Code:       CodeTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
		Cause:      cause,
	}
}

// TokenInvalid creates a 401 [AppError] for a tampered or malformed token.
func TokenInvalid(cause error) *AppError {
	return &AppError{
		Code:       CodeTokenInvalid,
		Message:    "Token signature is invalid",
		HTTPStatus: http.StatusUnauthorized,
		Cause:      cause,
	}
}

// TokenRevoked creates a 401 [AppError] for a token whose family has been revoked.
func TokenRevoked() *AppError {
	return &AppError{
		Code:       CodeTokenRevoked,
		Message:    "Token has been revoked",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// WrongTokenType creates a 401 [AppError] when an access token is presented where a
// refresh token is expected (or vice versa).
func WrongTokenType(expected string) *AppError {
	return &AppError{
		Code:       CodeWrongTokenType,
		Message:    "Expected a " + expected + " token",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// # Authorization Errors (403)

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// # Server Errors (5xx)

// SigningFailed creates a 500 [AppError] for a token that could not be serialized or signed.
func SigningFailed(cause error) *AppError {
	return &AppError{
		Code:       CodeSigningFailed,
		Message:    "Token could not be issued",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError].
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       CodeServiceUnavailable,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// CodeOf returns the Code of the [*AppError] in err's chain, or "" if there is none.
func CodeOf(err error) string {
	if ae := As(err); ae != nil {
		return ae.Code
	}
	return ""
}

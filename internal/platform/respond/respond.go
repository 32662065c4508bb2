// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Package respond provides HTTP response helpers used by all API handlers.
//
// # Architecture
//
// This package centralizes the presentation logic for HTTP responses.
// It ensures that every response (Success or Error) across the entire application
// follows a strict, predictable JSON envelope structure. This consistency lets
// the storefront, admin console, and peer services parse failures uniformly.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/ctxutil"
)

// SuccessEnvelope is the JSON envelope for successful single-resource responses.
type SuccessEnvelope struct {
	Data interface{} `json:"data"`
}

// ErrorEnvelope is the JSON envelope for error responses.
type ErrorEnvelope struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes a 200 OK response with data wrapped in the standard success envelope.
func OK(writer http.ResponseWriter, data interface{}) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Created writes a 201 Created response with data wrapped in the standard success envelope.
func Created(writer http.ResponseWriter, data interface{}) {
	JSON(writer, http.StatusCreated, SuccessEnvelope{Data: data})
}

// NoContent writes a 204 No Content response.
func NoContent(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusNoContent)
}

// NoStore marks the response as uncacheable. Token responses must never be
// stored by intermediaries.
func NoStore(writer http.ResponseWriter) {
	writer.Header().Set("Cache-Control", "no-store")
	writer.Header().Set("Pragma", "no-cache")
}

// Error converts any Go error into a standardized JSON API error response.
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	ctx := request.Context()
	logger := ctxutil.GetLogger(ctx)

	var appError *apperr.AppError
	if !errors.As(err, &appError) {
		// Unexpected internal error: log full details but hide them from the client for security.
		logger.ErrorContext(ctx, "unhandled_error_swallowed",
			slog.String("error", err.Error()),
			slog.String("request_id", ctxutil.GetRequestID(ctx)),
		)
		appError = apperr.Internal(err)
	}

	// Always log 5xx errors as they indicate server-side issues.
	if appError.HTTPStatus >= 500 {
		logger.ErrorContext(ctx, "api_server_error",
			slog.String("code", appError.Code),
			slog.String("request_id", ctxutil.GetRequestID(ctx)),
			slog.Any("cause", appError.Cause),
		)
	}

	if challenge := bearerChallenge(appError); challenge != "" {
		writer.Header().Set("WWW-Authenticate", challenge)
	}
	if appError.RetryAfter > 0 {
		writer.Header().Set("Retry-After", strconv.Itoa(appError.RetryAfter))
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{
		Error:   appError.Message,
		Code:    appError.Code,
		Details: appError.Details,
	})
}

// bearerChallenge builds the RFC 6750 challenge for 401 and 403 responses.
//
// A request without usable credentials gets a bare challenge; a presented but
// unusable token gets error="invalid_token"; a missing permission gets
// error="insufficient_scope".
func bearerChallenge(appError *apperr.AppError) string {
	const scheme = `Bearer realm="` + constants.AppName + `"`

	switch {
	case appError.Code == apperr.CodeMissingToken,
		appError.Code == apperr.CodeUnauthenticated,
		appError.Code == apperr.CodeUnauthorized:
		return scheme
	case appError.Code == apperr.CodeForbidden:
		return scheme + `, error="insufficient_scope"`
	case appError.HTTPStatus == http.StatusUnauthorized:
		return scheme + `, error="invalid_token", error_description="` + strings.ToLower(appError.Code) + `"`
	default:
		return ""
	}
}

// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package requestutil provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and body decoding,
and binds the request principal into handlers that declare they want it.
*/
package requestutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/metrics"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/respond"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/validate"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
BearerToken extracts the token of an 'Authorization: Bearer <token>' header.

Returns:
  - string: The token, empty when the header is absent
  - error: apperr.Unauthorized if the header is present but not a bearer credential
*/
func BearerToken(request *http.Request) (string, error) {
	header := strings.TrimSpace(request.Header.Get(constants.HeaderAuthorization))
	if header == "" {
		return "", nil
	}

	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, strings.TrimSpace(constants.BearerPrefix)) || token == "" {
		return "", apperr.Unauthorized("Invalid authorization format")
	}
	return token, nil
}

// # Principal Binding

// PrincipalHandler is a handler that receives the principal of the request.
//
// The principal is nil only when the binding is [Optional] and the request is anonymous.
type PrincipalHandler func(writer http.ResponseWriter, request *http.Request, principal *identity.Principal)

// BindOption customizes [BindPrincipal].
type BindOption func(*bindConfig)

type bindConfig struct {
	required bool
}

// Optional binds a nil principal for anonymous requests instead of rejecting them.
func Optional() BindOption {
	return func(config *bindConfig) {
		config.required = false
	}
}

/*
BindPrincipal adapts handler to http.HandlerFunc, supplying the current principal.

Description: Presence is re-checked here independently of the authentication
stage, so a route that admits anonymous callers can still have a handler that
demands a principal. Bindings are required unless [Optional] is passed.

Returns:
  - http.HandlerFunc: responds UNAUTHENTICATED when a required principal is absent
*/
func BindPrincipal(handler PrincipalHandler, options ...BindOption) http.HandlerFunc {
	config := bindConfig{required: true}
	for _, option := range options {
		option(&config)
	}

	return func(writer http.ResponseWriter, request *http.Request) {
		principal, ok := identity.PrincipalFrom(request.Context())
		if !ok {
			if config.required {
				metrics.RecordStage(metrics.StageBinder, metrics.OutcomeRejected)
				respond.Error(writer, request, apperr.Unauthenticated("Authentication required"))
				return
			}
			handler(writer, request, nil)
			return
		}

		// Principal is an immutable value; the handler gets its own copy.
		snapshot := principal
		handler(writer, request, &snapshot)
	}
}

/*
RequiredPrincipal returns the principal of the request for handlers that are
not wrapped by [BindPrincipal].

Returns:
  - identity.Principal: The authenticated principal
  - error: apperr.Unauthenticated if the request is anonymous
*/
func RequiredPrincipal(request *http.Request) (identity.Principal, error) {
	principal, ok := identity.PrincipalFrom(request.Context())
	if !ok {
		return identity.Principal{}, apperr.Unauthenticated("Authentication required")
	}
	return principal, nil
}

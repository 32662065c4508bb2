// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package identity holds the request-scoped identity of a call: the tenant it
operates on and the authenticated principal making it.

Architecture:

  - Principal: an immutable value constructed once per validated token.
  - TenantID: a decimal tenant identifier with an explicit default.
  - Scope: a per-request container installed by [Begin] and emptied by its
    release function on every exit path.

Business code reads identity through [Tenant] and [PrincipalFrom]; only the
pipeline stages write to the scope.
*/
package identity

import (
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// # User Types

// UserType discriminates the kind of account behind a principal.
type UserType string

const (
	// UserTypeMember is a storefront customer account.
	UserTypeMember UserType = "MEMBER"

	// UserTypeAdmin is a back-office operator account.
	UserTypeAdmin UserType = "ADMIN"

	// UserTypeService is a machine account used by peer services and jobs.
	UserTypeService UserType = "SERVICE"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeMember, UserTypeAdmin, UserTypeService:
		return true
	default:
		return false
	}
}

// # Principal

// Attributes is the plain-data form of a [Principal].
//
// It is what token issuance consumes and what [Principal.Attributes] hands back;
// mutating an Attributes value never affects a Principal built from it.
type Attributes struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Nickname    string   `json:"nickname,omitempty"`
	UserType    UserType `json:"user_type"`
	TenantID    TenantID `json:"tenant_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Principal is the authenticated identity resolved for a request.
//
// All fields are unexported and every accessor returns copies, so a Principal
// passed by value is a read-only snapshot.
type Principal struct {
	userID      string
	username    string
	nickname    string
	userType    UserType
	tenantID    TenantID
	roles       codeSet
	permissions codeSet
}

// NewPrincipal builds a Principal from attrs. Role and permission codes are
// trimmed, de-duplicated and copied.
func NewPrincipal(attrs Attributes) Principal {
	return Principal{
		userID:      attrs.UserID,
		username:    attrs.Username,
		nickname:    attrs.Nickname,
		userType:    attrs.UserType,
		tenantID:    attrs.TenantID,
		roles:       newCodeSet(attrs.Roles),
		permissions: newCodeSet(attrs.Permissions),
	}
}

func (p Principal) UserID() string     { return p.userID }
func (p Principal) Username() string   { return p.username }
func (p Principal) Nickname() string   { return p.nickname }
func (p Principal) UserType() UserType { return p.userType }
func (p Principal) TenantID() TenantID { return p.tenantID }

// Roles returns a sorted copy of the principal's role codes.
func (p Principal) Roles() []string { return p.roles.list() }

// Permissions returns a sorted copy of the principal's permission codes.
func (p Principal) Permissions() []string { return p.permissions.list() }

// HasRole reports whether the principal holds role (case-insensitive).
func (p Principal) HasRole(role string) bool { return p.roles.has(role) }

// HasPermission reports whether the principal holds code (case-insensitive).
func (p Principal) HasPermission(code string) bool { return p.permissions.has(code) }

// Attributes returns a detached plain-data copy of the principal.
func (p Principal) Attributes() Attributes {
	return Attributes{
		UserID:      p.userID,
		Username:    p.username,
		Nickname:    p.nickname,
		UserType:    p.userType,
		TenantID:    p.tenantID,
		Roles:       p.Roles(),
		Permissions: p.Permissions(),
	}
}

// MarshalJSON renders the principal through its [Attributes].
func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Attributes())
}

// # Code Sets

// codeSet is an immutable set of role or permission codes. Lookups compare the
// Unicode case-folded form; list returns the codes as they were granted.
type codeSet struct {
	codes  []string
	folded map[string]struct{}
}

func newCodeSet(codes []string) codeSet {
	set := codeSet{folded: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		key := FoldCode(code)
		if _, seen := set.folded[key]; seen {
			continue
		}
		set.folded[key] = struct{}{}
		set.codes = append(set.codes, code)
	}
	slices.Sort(set.codes)
	return set
}

func (s codeSet) has(code string) bool {
	_, ok := s.folded[FoldCode(code)]
	return ok
}

func (s codeSet) list() []string {
	return slices.Clone(s.codes)
}

// FoldCode returns the canonical comparison form of a role or permission code.
func FoldCode(code string) string {
	// A Caser is stateful; never share one across goroutines.
	return cases.Fold().String(strings.TrimSpace(code))
}

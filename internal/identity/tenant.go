// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// TenantID identifies the customer organization whose data a request may access.
type TenantID int64

// DefaultTenantID is the tenant a request operates on when it carries no tenant marker.
const DefaultTenantID TenantID = 1

// String renders the tenant as its decimal form.
func (t TenantID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ParseTenantID parses a decimal tenant marker.
//
// Only canonical positive identifiers are valid: ASCII digits with no sign and
// no leading zeros, so each tenant has exactly one marker spelling.
func ParseTenantID(raw string) (TenantID, error) {
	digits := strings.TrimSpace(raw)
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf("identity: tenant id %q is not a decimal integer", raw)
	}
	if digits[0] == '0' {
		return 0, fmt.Errorf("identity: tenant id %q must be positive without leading zeros", raw)
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identity: tenant id %q is out of range: %w", raw, err)
	}
	return TenantID(value), nil
}

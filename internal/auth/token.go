// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth guards the review dashboard: a shared password is exchanged
// for a signed session cookie.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// CookieName is the reviewer session cookie.
const CookieName = "rev"

// ExtractToken retrieves the reviewer session token from the request.
// 1. Authorization: Bearer <token>
// 2. Cookie: rev
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// AuthorizePassword returns true if got matches expected using constant-time comparison.
func AuthorizePassword(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth implements the token gate in front of the delivery and admin routes.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CookieName is the fallback cookie carrying the access token.
const CookieName = "access_token"

var (
	// ErrUnauthenticated is returned when no valid credential was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMissingToken is a more specific ErrUnauthenticated.
	ErrMissingToken = fmt.Errorf("%w: no token", ErrUnauthenticated)
)

// ExtractToken retrieves the access token from the request.
// 1. Authorization: Bearer <token>
// 2. Cookie: access_token
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// AuthorizeToken reports whether got matches expected using constant-time comparison.
// Empty tokens are always treated as unauthorized.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
}

type staticEntry struct {
	user  string
	token string
}

// StaticTokens authenticates against a fixed set of tokens.
type StaticTokens struct {
	entries []staticEntry
}

// NewStaticTokens builds an authenticator from user -> token pairs.
// Empty tokens are ignored.
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	s := &StaticTokens{}
	for user, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		s.entries = append(s.entries, staticEntry{user: user, token: tok})
	}
	return s
}

// ParseTokenPairs parses comma-separated "user:token" pairs. A bare token
// without a user is accepted and gets a derived principal id.
func ParseTokenPairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		user, tok, found := strings.Cut(part, ":")
		if !found {
			user, tok = "", user
		}
		user, tok = strings.TrimSpace(user), strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("token pair %d: empty token", i+1)
		}
		if _, dup := out[user]; dup {
			return nil, fmt.Errorf("token pair %d: duplicate user %q", i+1, user)
		}
		out[user] = tok
	}
	return out, nil
}

// Len returns the number of configured tokens.
func (s *StaticTokens) Len() int { return len(s.entries) }

// Authenticate implements Authenticator. Every entry is compared so the
// time taken does not depend on which one matched.
func (s *StaticTokens) Authenticate(r *http.Request) (*Principal, error) {
	got := ExtractToken(r)
	if got == "" {
		return nil, ErrMissingToken
	}
	var match *staticEntry
	for i := range s.entries {
		if AuthorizeToken(got, s.entries[i].token) && match == nil {
			match = &s.entries[i]
		}
	}
	if match == nil {
		return nil, ErrUnauthenticated
	}
	return NewPrincipal(got, match.user), nil
}

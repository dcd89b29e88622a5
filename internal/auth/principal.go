package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Principal represents the authenticated identity of a caller.
type Principal struct {
	// ID is the stable identifier: the configured user, or a hash of the token.
	ID string

	// User is the human-readable username if configured.
	User string

	// Token is kept for the lifetime of the request only and never logged.
	Token string
}

// NewPrincipal creates a Principal from a token and optional user.
func NewPrincipal(token, user string) *Principal {
	id := user
	if id == "" {
		// "t_" prefix keeps derived ids apart from usernames
		hash := sha256.Sum256([]byte(token))
		id = "t_" + hex.EncodeToString(hash[:])[:16]
	}
	return &Principal{ID: id, User: user, Token: token}
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

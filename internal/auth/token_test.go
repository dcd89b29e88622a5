// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken_PriorityOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/video/", nil)
	r.Header.Set("Authorization", "Bearer bearer-token ")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	assert.Equal(t, "bearer-token", ExtractToken(r))
}

func TestExtractToken_CookieFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/video/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	assert.Equal(t, "cookie-token", ExtractToken(r))
}

func TestExtractToken_QueryIgnored(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/video/?token=query-token", nil)
	assert.Empty(t, ExtractToken(r))
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("secret", "secret"))
	assert.False(t, AuthorizeToken("secret", "other"))
	assert.False(t, AuthorizeToken("", "secret"))
	assert.False(t, AuthorizeToken("secret", ""))
}

func TestStaticTokens(t *testing.T) {
	a := NewStaticTokens(map[string]string{"alice": "a-secret", "bob": "b-secret", "nobody": " "})
	assert.Equal(t, 2, a.Len())

	r := httptest.NewRequest(http.MethodGet, "/video/", nil)
	r.Header.Set("Authorization", "Bearer b-secret")
	p, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.ID)
	assert.Equal(t, "bob", p.User)

	r = httptest.NewRequest(http.MethodGet, "/video/", nil)
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	r = httptest.NewRequest(http.MethodGet, "/video/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "wrong"})
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrMissingToken)
}

func TestParseTokenPairs(t *testing.T) {
	got, err := ParseTokenPairs("alice:one, bob:two,,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "one", "bob": "two"}, got)

	got, err = ParseTokenPairs("lonely")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"": "lonely"}, got)

	_, err = ParseTokenPairs("alice:")
	assert.Error(t, err)
	_, err = ParseTokenPairs("alice:a,alice:b")
	assert.Error(t, err)
}

func TestPrincipalDerivedID(t *testing.T) {
	p := NewPrincipal("tok", "")
	assert.Regexp(t, `^t_[0-9a-f]{16}$`, p.ID)
	assert.Equal(t, p.ID, NewPrincipal("tok", "").ID)

	ctx := WithPrincipal(context.Background(), p)
	assert.Same(t, p, PrincipalFrom(ctx))
	assert.Nil(t, PrincipalFrom(context.Background()))
}

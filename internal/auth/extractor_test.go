package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenFromRequestPrefersBearerHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-token"})

	token, ok := TokenFromRequest(req)
	require.True(t, ok)
	require.Equal(t, "header-token", token)
}

func TestTokenFromRequestFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-token"})

	token, ok := TokenFromRequest(req)
	require.True(t, ok)
	require.Equal(t, "cookie-token", token)
}

func TestTokenFromRequestCaseInsensitiveScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer lower-token")

	token, ok := TokenFromRequest(req)
	require.True(t, ok)
	require.Equal(t, "lower-token", token)
}

func TestTokenFromRequestMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := TokenFromRequest(req)
	require.False(t, ok)
}

func TestTokenFromRequestIgnoresEmptyBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer    ")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-token"})

	token, ok := TokenFromRequest(req)
	require.True(t, ok)
	require.Equal(t, "cookie-token", token)
}

func TestTokenFromRequestOtherScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	_, ok := TokenFromRequest(req)
	require.False(t, ok)
}

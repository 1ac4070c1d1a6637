package auth

import (
	"net/http"
	"strings"
)

// SessionCookieName is the cookie carrying the session token for browser clients.
const SessionCookieName = "token"

// TokenFromRequest resolves the session token from an incoming request. The
// Authorization bearer header wins (mobile and API clients); the session
// cookie is the browser fallback. Every protected endpoint resolves tokens
// through this single path.
func TokenFromRequest(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}

	authz := r.Header.Get("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		token := strings.TrimSpace(authz[7:])
		if token != "" {
			return token, true
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	return cookie.Value, true
}

package middleware

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/gridwatch/healthindexer/internal/auth"
	"github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// Auth enforces JWT authentication using the supplied JWT service. The token
// is taken from the Authorization header or the session cookie.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := iauth.TokenFromRequest(c.Request)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.VerifySession(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)

		c.Next()
	}
}

// RequireAdmin gates a route group behind the admin policy. It must run after
// Auth so that claims are present in the context.
func RequireAdmin(policy *iauth.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !policy.IsAdmin(claims) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ClaimsFromContext retrieves the authenticated claims set by Auth, or nil.
func ClaimsFromContext(c *gin.Context) *iauth.Claims {
	value, exists := c.Get(CtxClaimsKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*iauth.Claims)
	if !ok {
		return nil
	}
	return claims
}

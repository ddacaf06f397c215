package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// bearerToken extracts the credential from an Authorization: Bearer header.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	// Tolerate a raw token without the scheme prefix.
	return strings.TrimSpace(h)
}

// RequireAuth rejects requests without a valid bearer token; on success the
// subject user id is stored under "userID" for downstream middleware and
// handlers.
func RequireAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Identity may already be resolved by a global OptionalAuth.
		if UserID(c) != "" {
			c.Next()
			return
		}
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "no token provided",
			})
			return
		}
		userID, err := v.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid token",
			})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// OptionalAuth resolves a bearer token when one is supplied but never
// rejects; anonymous callers proceed with no identity. The AI endpoints use
// this so the public chat widget works while logged-in users still get
// owner-scoped context.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) != "" {
			c.Next()
			return
		}
		if token := bearerToken(c); token != "" {
			if userID, err := v.VerifyToken(token); err == nil {
				c.Set("userID", userID)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return asString(ctxValue(c, "userID"))
}

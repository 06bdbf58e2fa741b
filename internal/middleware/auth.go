package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/StefanPetk0vic/Locus/internal/auth"
	"github.com/StefanPetk0vic/Locus/internal/domain"
)

const (
	callerIDKey   = "caller_id"
	callerRoleKey = "caller_role"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// caller's id and role on the context.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
			return
		}

		c.Set(callerIDKey, claims.UserID)
		c.Set(callerRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role differs from role.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires role " + string(role)})
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated user id, or "" outside AuthMiddleware.
func CallerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}

// CallerRole returns the authenticated role, or "" outside AuthMiddleware.
func CallerRole(c *gin.Context) domain.Role {
	role, _ := c.Get(callerRoleKey)
	r, _ := role.(domain.Role)
	return r
}

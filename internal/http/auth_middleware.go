package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wartelsys/wartel/internal/security"
)

// Context keys populated by ActorAuthMiddleware.
const (
	ContextActorID   = "actorID"
	ContextActorName = "actorName"
	ContextStaff     = "staff"
)

// ActorAuthMiddleware validates the bearer token and loads the actor claims
// into the request context. Identity is managed externally; the token only
// carries an opaque actor id and a staff flag.
func ActorAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errParse := security.ParseActorToken(secret, token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextActorID, claims.ActorID)
		c.Set(ContextActorName, claims.Name)
		c.Set(ContextStaff, claims.Staff)
		c.Next()
	}
}

// RequireStaff aborts requests whose token lacks the staff flag. Must run
// after ActorAuthMiddleware.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextStaff) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
			return
		}
		c.Next()
	}
}

package auth

import (
	"net/http"
	"strings"

	"openlens/internal/config"
	"openlens/internal/session"

	"github.com/gin-gonic/gin"
)

// ContextKey is where SessionMiddleware stores the *session.Session.
const ContextKey = "session"

// SessionMiddleware resolves the bearer token (or ?token= for WebSocket
// upgrades, which cannot set headers from a browser) to a live session.
func SessionMiddleware(cfg *config.Config, mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Missing or invalid Authorization header"}})
			return
		}
		claims, err := ParseSessionToken(cfg.Server.JWTSecret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token"}})
			return
		}
		sess, err := mgr.Get(c.Request.Context(), claims.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Session expired or invalid"}})
			return
		}
		c.Set(ContextKey, sess)
		c.Next()
	}
}

// FromContext returns the session attached by SessionMiddleware.
func FromContext(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Query("token")
}

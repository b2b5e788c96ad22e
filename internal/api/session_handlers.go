package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"openlens/internal/auth"
	"openlens/internal/config"
	"openlens/internal/session"
)

// Tokens outlive any idle TTL; the registry decides when a session is gone.
const sessionTokenTTL = 24 * time.Hour

// POST /session
func CreateSessionHandler(cfg *config.Config, mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := mgr.Create(c.Request.Context())
		if err != nil {
			log.Printf("[API] Failed to create session: %v", err)
			abortWithError(c, http.StatusServiceUnavailable, "could not create session")
			return
		}
		token, err := auth.GenerateSessionToken(cfg.Server.JWTSecret, sess.ID, sessionTokenTTL)
		if err != nil {
			log.Printf("[API] Failed to sign session token: %v", err)
			mgr.End(c.Request.Context(), sess.ID)
			abortWithError(c, http.StatusInternalServerError, "could not create session")
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session_id": sess.ID,
			"token":      token,
			"created_at": sess.CreatedAt,
		})
	}
}

// DELETE /session
func EndSessionHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.FromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "no session")
			return
		}
		if err := mgr.End(c.Request.Context(), sess.ID); err != nil {
			log.Printf("[API] Failed to discard memory for %s: %v", sess.ID, err)
			abortWithError(c, http.StatusInternalServerError, "session ended but memory could not be discarded")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ended"})
	}
}

package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"openlens/internal/auth"
	"openlens/internal/memory"
)

// GET /memory?order=newest|oldest
func ListMemoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.FromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "no session")
			return
		}
		order, err := memory.ParseOrder(c.Query("order"))
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		entries, err := sess.Memory.List(c.Request.Context(), order)
		if err != nil {
			log.Printf("[API] Failed to list memory for %s: %v", sess.ID, err)
			abortWithError(c, http.StatusInternalServerError, "failed to read memory")
			return
		}
		if entries == nil {
			entries = []memory.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{
			"order":   order.String(),
			"count":   len(entries),
			"entries": entries,
		})
	}
}

// DELETE /memory
func ResetMemoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.FromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "no session")
			return
		}
		if err := sess.Memory.Reset(c.Request.Context()); err != nil {
			log.Printf("[API] Failed to reset memory for %s: %v", sess.ID, err)
			abortWithError(c, http.StatusInternalServerError, "failed to reset memory")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"openlens/internal/config"
)

// GET /health
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GET /config
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only return non-sensitive config fields
		c.JSON(http.StatusOK, gin.H{
			"server": gin.H{
				"host":    cfg.Server.Host,
				"port":    cfg.Server.Port,
				"subpath": cfg.Server.Subpath,
			},
			"llm": gin.H{
				"model":       cfg.LLM.Model,
				"temperature": cfg.LLM.GenerationTemperature(),
				"top_p":       cfg.LLM.TopP,
				"max_tokens":  cfg.LLM.MaxTokens,
			},
			"extractor": gin.H{
				"policy":      cfg.Extractor.Policy,
				"max_size_mb": cfg.Extractor.MaxSizeMB,
			},
			"memory": gin.H{
				"backend":             cfg.Memory.Backend,
				"capacity":            cfg.Memory.Capacity,
				"session_ttl_minutes": cfg.Memory.SessionTTLMinutes,
			},
		})
	}
}

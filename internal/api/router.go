package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"openlens/internal/analysis"
	"openlens/internal/auth"
	"openlens/internal/config"
	"openlens/internal/session"
	"openlens/internal/sources"
)

// Deps are the long-lived services the handlers share.
type Deps struct {
	Sessions *session.Manager
	Analyzer *analysis.Analyzer
	Explorer *sources.Explorer
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	r := gin.Default()
	subpath := cfg.Server.Subpath // "" or "/openlens", never a trailing slash

	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler)
		group.GET("/config", configHandler(cfg))

		// Sessions
		group.POST("/session", CreateSessionHandler(cfg, deps.Sessions))
		group.DELETE("/session", auth.SessionMiddleware(cfg, deps.Sessions), EndSessionHandler(deps.Sessions))

		// Analysis
		group.POST("/analyze", auth.SessionMiddleware(cfg, deps.Sessions), AnalyzeHandler(deps.Analyzer))
		group.GET("/analyze", auth.SessionMiddleware(cfg, deps.Sessions), AnalyzeHandler(deps.Analyzer))
		group.GET("/ws/analyze", auth.SessionMiddleware(cfg, deps.Sessions), WSAnalyzeHandler(deps.Analyzer))

		// Session memory
		group.GET("/memory", auth.SessionMiddleware(cfg, deps.Sessions), ListMemoryHandler())
		group.DELETE("/memory", auth.SessionMiddleware(cfg, deps.Sessions), ResetMemoryHandler())

		// Web data explorer
		group.GET("/explore", ExploreHandler(subpath, deps.Explorer))
	}
	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "not found")
	})
	return r
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message}})
}

package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"openlens/internal/sources"
)

type ExploreListing struct {
	sources.Listing
	AnalyzeURL string `json:"analyze_url,omitempty"`
}

type ExploreGroup struct {
	Source   string           `json:"source"`
	Listings []ExploreListing `json:"listings"`
}

// GET /explore?limit=
func ExploreHandler(subpath string, e *sources.Explorer) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := sources.ParseLimit(c.Query("limit"), e.DefaultLimit())
		groups := e.Explore(c.Request.Context(), limit)

		out := make([]ExploreGroup, 0, len(groups))
		for _, g := range groups {
			eg := ExploreGroup{Source: g.Source, Listings: make([]ExploreListing, 0, len(g.Listings))}
			for _, l := range g.Listings {
				eg.Listings = append(eg.Listings, ExploreListing{Listing: l, AnalyzeURL: analyzeLink(subpath, l.Link)})
			}
			out = append(out, eg)
		}
		c.JSON(http.StatusOK, gin.H{"limit": limit, "groups": out})
	}
}

// analyzeLink points at GET /analyze for link. The caller adds its session,
// either as a bearer header or a token query parameter.
func analyzeLink(subpath, link string) string {
	if link == "" {
		return ""
	}
	return subpath + "/analyze?url=" + url.QueryEscape(link)
}

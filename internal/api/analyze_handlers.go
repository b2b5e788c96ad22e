package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"openlens/internal/analysis"
	"openlens/internal/auth"
	"openlens/internal/extractor"
)

type AnalyzeRequest struct {
	URL      string `json:"url" form:"url"`
	Question string `json:"question" form:"question"`
}

// POST /analyze with a JSON body, or GET /analyze?url=&question= for the links
// handed out by /explore.
func AnalyzeHandler(a *analysis.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.FromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "no session")
			return
		}
		var body AnalyzeRequest
		if c.Request.Method == http.MethodGet {
			if err := c.ShouldBindQuery(&body); err != nil {
				abortWithError(c, http.StatusBadRequest, "invalid query")
				return
			}
		} else if err := c.ShouldBindJSON(&body); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
		req := analysis.NewRequest(body.URL, body.Question)
		if req.URL == "" {
			abortWithError(c, http.StatusBadRequest, "url is required")
			return
		}

		res, err := a.Analyze(c.Request.Context(), sess.Memory, req)
		if err != nil {
			writeExtractionFailure(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// writeExtractionFailure answers 422 with the sentinel text so clients can
// tell a page that could not be read from a summarizer problem.
func writeExtractionFailure(c *gin.Context, err error) {
	body := gin.H{"message": err.Error()}
	var f *extractor.Failure
	if errors.As(err, &f) {
		body["kind"] = f.Kind.String()
		if f.Status != 0 {
			body["status"] = f.Status
		}
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": body})
}

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"openlens/internal/analysis"
	"openlens/internal/auth"
	"openlens/internal/extractor"
)

// WSEvent is every frame the server sends on /ws/analyze.
type WSEvent struct {
	Event   string           `json:"event"` // stage, result or error
	Stage   analysis.Stage   `json:"stage,omitempty"`
	Result  *analysis.Result `json:"result,omitempty"`
	Message string           `json:"message,omitempty"`
	Kind    string           `json:"kind,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket connection wrapper with mutex for thread-safe writes
type safeWSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeWSConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *safeWSConn) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s *safeWSConn) Close() error {
	return s.conn.Close()
}

// GET /ws/analyze?token=
//
// Each client message is one AnalyzeRequest. The server answers with a stage
// event per pipeline step and then a single result or error event. The
// connection stays open for further requests until the client closes it.
func WSAnalyzeHandler(a *analysis.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.FromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "no session")
			return
		}

		rawConn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("[API] WebSocket upgrade failed:", err)
			return
		}
		conn := &safeWSConn{conn: rawConn}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[API] WebSocket read for %s ended: %v", sess.ID, err)
				}
				return
			}
			var body AnalyzeRequest
			if err := json.Unmarshal(msg, &body); err != nil {
				conn.WriteJSON(WSEvent{Event: "error", Message: "invalid JSON"})
				continue
			}
			req := analysis.NewRequest(body.URL, body.Question)
			if req.URL == "" {
				conn.WriteJSON(WSEvent{Event: "error", Message: "url is required"})
				continue
			}

			res, err := a.Analyze(c.Request.Context(), sess.Memory, req, func(s analysis.Stage) {
				conn.WriteJSON(WSEvent{Event: "stage", Stage: s})
			})
			if err != nil {
				ev := WSEvent{Event: "error", Message: err.Error()}
				var f *extractor.Failure
				if errors.As(err, &f) {
					ev.Kind = f.Kind.String()
				}
				conn.WriteJSON(ev)
				continue
			}
			if err := conn.WriteJSON(WSEvent{Event: "result", Result: res}); err != nil {
				return
			}
		}
	}
}

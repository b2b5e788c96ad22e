package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"openlens/internal/analysis"
	"openlens/internal/config"
	"openlens/internal/extractor"
	"openlens/internal/session"
	"openlens/internal/sources"
)

// fakeExtractor fails for any URL containing "missing".
type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, url string) (string, error) {
	if strings.Contains(url, "missing") {
		return "", &extractor.Failure{Kind: extractor.KindFetch, URL: url, Status: 404}
	}
	return "A.\nB.\nC.", nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, text, question string) (string, error) {
	if question == "" {
		return "Three letters.", nil
	}
	return "Three letters. Answer: C", nil
}

type stubFetcher struct {
	name     string
	listings []sources.Listing
}

func (s stubFetcher) Name() string { return s.name }

func (s stubFetcher) Fetch(ctx context.Context, limit int) ([]sources.Listing, error) {
	return s.listings, nil
}

type testEnv struct {
	cfg    *config.Config
	router *gin.Engine
	mgr    *session.Manager
}

func newTestEnv(t *testing.T, subpath string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.Subpath = subpath
	cfg.ApplyDefaults()

	mgr := session.NewManager(session.LocalStores(0), time.Hour)
	explorer := sources.NewExplorer(time.Second, stubFetcher{
		name:     "Stub",
		listings: []sources.Listing{{Title: "Hello", Link: "https://example.com/a?b=c", Source: "Stub"}},
	})
	deps := Deps{
		Sessions: mgr,
		Analyzer: analysis.NewAnalyzer(fakeExtractor{}, fakeSummarizer{}),
		Explorer: explorer,
	}
	return &testEnv{cfg: cfg, router: SetupRouter(cfg, deps), mgr: mgr}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// newSession creates a session through the API and returns its token.
func (e *testEnv) newSession(t *testing.T) (id, token string) {
	t.Helper()
	w := e.do(t, "POST", e.cfg.Server.Subpath+"/session", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating session, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.SessionID, resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func newRedditServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		id, secret, ok := r.BasicAuth()
		if !ok || id != "cid" || secret != "csecret" || r.FormValue("grant_type") != "client_credentials" ||
			r.Header.Get("User-Agent") != "openlens/test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/r/technology/hot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("User-Agent") != "openlens/test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"children": []map[string]interface{}{
					{"data": map[string]interface{}{"title": "Megathread", "url": "https://reddit.com/m", "stickied": true}},
					{"data": map[string]interface{}{"title": "New GPU", "url": "https://example.com/gpu"}},
					{"data": map[string]interface{}{"title": "Rust 2.0", "url": "https://example.com/rust"}},
				},
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestRedditFetch(t *testing.T) {
	var tokenCalls int32
	srv := newRedditServer(t, &tokenCalls)
	defer srv.Close()

	client := newRedditClient("cid", "csecret", "openlens/test", "technology", 5*time.Second,
		srv.URL+"/api/v1/access_token", srv.URL)

	listings, err := client.Fetch(context.Background(), 5)

	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(listings))
	assert.Equal(t, "New GPU", listings[0].Title)
	assert.Equal(t, "https://example.com/gpu", listings[0].Link)
	assert.Equal(t, "Reddit", listings[0].Source)

	_, err = client.Fetch(context.Background(), 1)
	assert.Equal(t, nil, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestRedditFetch_BadCredentials(t *testing.T) {
	var tokenCalls int32
	srv := newRedditServer(t, &tokenCalls)
	defer srv.Close()

	client := newRedditClient("cid", "wrong", "openlens/test", "technology", 5*time.Second,
		srv.URL+"/api/v1/access_token", srv.URL)

	_, err := client.Fetch(context.Background(), 5)
	assert.NotEqual(t, nil, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestRedditFetch_NoCredentials(t *testing.T) {
	client := NewRedditClient("", "", "ua", "technology", time.Second)
	_, err := client.Fetch(context.Background(), 5)
	assert.Equal(t, errNoRedditCredentials, err)
}

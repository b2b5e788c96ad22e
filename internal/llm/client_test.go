package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
)

func completionJSON(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"total_tokens": 42},
	})
	return string(b)
}

func testClient(url string, retries int) *Client {
	return NewClient(Options{
		URL:         url,
		APIKey:      "test-key",
		Model:       "test-model",
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   1024,
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
}

func TestSummarize_SendsPayloadAndReturnsContent(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		fmt.Fprint(w, completionJSON("  Blah blah. Answer: 42  "))
	}))
	defer srv.Close()

	out, err := testClient(srv.URL, 0).Summarize(context.Background(), "article text", "What is it?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "  Blah blah. Answer: 42  " {
		t.Errorf("expected content verbatim, got %q", out)
	}
	if auth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if got["model"] != "test-model" || got["temperature"] != 0.7 || got["top_p"] != 0.9 || got["max_tokens"] != float64(1024) {
		t.Errorf("unexpected generation params: %+v", got)
	}
	msgs, ok := got["messages"].([]interface{})
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected two messages, got %+v", got["messages"])
	}
	user := msgs[1].(map[string]interface{})
	if user["role"] != "user" || !strings.Contains(user["content"].(string), "article text") {
		t.Errorf("unexpected user message: %+v", user)
	}
}

func TestSummarize_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad model"}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Summarize(context.Background(), "text", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if err.Error() != `API Error 400: {"error":"bad model"}` {
		t.Errorf("unexpected error text: %q", err.Error())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 attempt, got %d", n)
	}
}

func TestSummarize_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, completionJSON("recovered"))
	}))
	defer srv.Close()

	out, err := testClient(srv.URL, 2).Summarize(context.Background(), "text", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "recovered" {
		t.Errorf("expected recovered content, got %q", out)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestSummarize_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "overloaded")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Summarize(context.Background(), "text", "")
	if err == nil || err.Error() != "API Error 503: overloaded" {
		t.Fatalf("expected 503 API error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestSummarize_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, "slow down")
			return
		}
		fmt.Fprint(w, completionJSON("ok"))
	}))
	defer srv.Close()

	start := time.Now()
	out, err := testClient(srv.URL, 1).Summarize(context.Background(), "text", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("expected ok, got %q", out)
	}
	// Retry-After is capped by MaxBackoff (5ms here).
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Retry-After should be capped, took %s", elapsed)
	}
}

func TestSummarize_TimeoutIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	c.timeout = 50 * time.Millisecond
	if _, err := c.Summarize(context.Background(), "text", ""); err == nil {
		t.Fatalf("expected timeout error")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestSummarize_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL, 0).Summarize(context.Background(), "text", ""); err == nil {
		t.Errorf("expected error for empty choices")
	}
}

func TestSummarize_BreakerRejectsAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	c.breaker = NewCircuitBreaker(1, time.Hour)

	if _, err := c.Summarize(context.Background(), "text", ""); err == nil {
		t.Fatalf("expected first call to fail")
	}
	_, err := c.Summarize(context.Background(), "text", "")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("open breaker should not reach the server, got %d calls", n)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("3"); d != 3*time.Second {
		t.Errorf("expected 3s, got %s", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("expected 0 for empty header, got %s", d)
	}
	if d := parseRetryAfter("soon"); d != 0 {
		t.Errorf("expected 0 for garbage, got %s", d)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(future); d <= 0 || d > time.Minute {
		t.Errorf("expected positive duration for HTTP-date, got %s", d)
	}
}

func TestSummarize_CancelledCallKeepsBreakerOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	now := time.Unix(1000, 0)
	c := testClient(srv.URL, 0)
	c.breaker = NewCircuitBreaker(1, time.Minute)
	c.breaker.now = func() time.Time { return now }

	if _, err := c.Summarize(context.Background(), "text", ""); err == nil {
		t.Fatalf("expected 503 to fail")
	}
	if c.breaker.State() != StateOpen {
		t.Fatalf("expected open breaker, got %s", c.breaker.State())
	}

	now = now.Add(2 * time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Summarize(ctx, "text", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.breaker.State() == StateClosed {
		t.Fatalf("a cancelled call must not close the breaker")
	}
	if err := c.breaker.Allow(); err != nil {
		t.Errorf("next call should be allowed as a trial call, got %v", err)
	}
}

func TestHintedBackoff_RetryAfterReplacesStep(t *testing.T) {
	b := &hintedBackoff{next: retry.WithMaxRetries(2, retry.NewConstant(time.Hour)), max: time.Minute}

	b.hint = 3 * time.Second
	if d, stop := b.Next(); stop || d != 3*time.Second {
		t.Fatalf("expected the Retry-After delay alone, got %s stop=%v", d, stop)
	}
	if d, stop := b.Next(); stop || d != time.Hour {
		t.Fatalf("hint should apply once, got %s stop=%v", d, stop)
	}
	b.hint = time.Hour
	if _, stop := b.Next(); !stop {
		t.Errorf("retry budget still applies with a hint")
	}

	capped := &hintedBackoff{next: retry.NewConstant(time.Millisecond), max: time.Second, hint: time.Hour}
	if d, _ := capped.Next(); d != time.Second {
		t.Errorf("hint should be capped at max, got %s", d)
	}
}

func TestSummarize_RetryAfterIsNotAddedToBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, completionJSON("ok"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	c.baseBackoff = 2 * time.Second
	c.maxBackoff = 3 * time.Second

	start := time.Now()
	if _, err := c.Summarize(context.Background(), "text", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 1800*time.Millisecond {
		t.Errorf("expected a single 1s wait, took %s", elapsed)
	}
}

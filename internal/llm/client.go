// Package llm talks to an OpenAI-compatible chat-completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"openlens/internal/config"
)

// APIError is a non-success answer from the completion endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error %d: %s", e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	URL         string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int

	// Timeout applies to each attempt.
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	Breaker    *CircuitBreaker
	HTTPClient *http.Client
}

// Client summarizes articles through the completion endpoint.
type Client struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	breaker     *CircuitBreaker
}

// NewClient creates a completion client.
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = config.DefaultLLMURL
	}
	if opts.Model == "" {
		opts.Model = config.DefaultLLMModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		httpClient:  opts.HTTPClient,
		url:         opts.URL,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		breaker:     opts.Breaker,
	}
}

// NewClientFromConfig builds a client from the llm config section.
func NewClientFromConfig(cfg config.LLMConfig) *Client {
	if cfg.APIKey == "" {
		log.Printf("[LLM] WARNING: no API key configured for %s", cfg.URL)
	}
	return NewClient(Options{
		URL:         cfg.URL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.GenerationTemperature(),
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.RetryBudget(),
		Breaker:     NewCircuitBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSecs)*time.Second),
	})
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Summarize asks the model for a summary of articleText and, when question is
// not blank, an answer. The raw completion is returned unparsed.
func (c *Client) Summarize(ctx context.Context, articleText, question string) (string, error) {
	return c.Complete(ctx, BuildMessages(articleText, question))
}

// Complete sends messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		return "", fmt.Errorf("summarizer unavailable: %w", err)
	}

	payload := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"top_p":       c.topP,
		"max_tokens":  c.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	base := retry.NewExponential(c.baseBackoff)
	base = retry.WithJitterPercent(20, base)
	base = retry.WithCappedDuration(c.maxBackoff, base)
	base = retry.WithMaxRetries(uint64(c.maxRetries), base)
	backoff := &hintedBackoff{next: base, max: c.maxBackoff}

	var content string
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, err := c.post(ctx, body)
		if err == nil {
			content = out
			return nil
		}
		if !retryable(err) {
			return err
		}
		log.Printf("[LLM] Attempt %d failed, will retry: %v", attempt, err)
		backoff.hint = retryAfter(err)
		return retry.RetryableError(err)
	})

	if errors.Is(err, context.Canceled) {
		c.breaker.Release()
	} else {
		c.breaker.Record(err != nil && countsAsOutage(err))
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

// hintedBackoff waits for the server's Retry-After delay, capped at max, in
// place of the next exponential step when one is pending.
type hintedBackoff struct {
	next retry.Backoff
	max  time.Duration
	hint time.Duration
}

func (b *hintedBackoff) Next() (time.Duration, bool) {
	d, stop := b.next.Next()
	if stop {
		return 0, true
	}
	if b.hint > 0 {
		d = min(b.hint, b.max)
		b.hint = 0
	}
	return d, false
}

// rateLimitError carries the server's Retry-After hint alongside the APIError.
type rateLimitError struct {
	*APIError
	wait time.Duration
}

func (e *rateLimitError) Unwrap() error { return e.APIError }

// post performs one attempt.
func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{Status: resp.StatusCode, Body: string(b)}
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", &rateLimitError{APIError: apiErr, wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
		}
		return "", apiErr
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices returned from LLM")
	}

	log.Printf("[LLM] Completion received (model=%s, tokens=%d)", c.model, result.Usage.TotalTokens)
	return result.Choices[0].Message.Content, nil
}

// retryable: 5xx, 429 and timeouts.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// countsAsOutage decides which final errors move the breaker toward open.
// Client errors such as a bad key say nothing about endpoint health.
func countsAsOutage(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func retryAfter(err error) time.Duration {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return rl.wait
	}
	return 0
}

// parseRetryAfter understands the delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Package extractor fetches a web page and reduces it to plain article text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"openlens/internal/config"
)

// Options configures an Extractor.
type Options struct {
	Policy        Policy
	UserAgent     string
	Timeout       time.Duration
	MaxSizeMB     int
	PDFLicenseKey string
}

// Extractor handles HTTP fetching and text extraction.
type Extractor struct {
	httpClient *http.Client
	userAgent  string
	maxSizeMB  int
	policy     Policy
}

// page is a fetched response body plus what is needed to parse it.
type page struct {
	body        []byte
	contentType string
	url         *url.URL
}

// New creates an extractor.
func New(opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.Policy == "" {
		opts.Policy = PolicyParagraphs
	}
	setPDFLicense(opts.PDFLicenseKey)

	return &Extractor{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		maxSizeMB: opts.MaxSizeMB,
		policy:    opts.Policy,
	}
}

// NewFromConfig builds an extractor from the extractor config section.
func NewFromConfig(cfg config.ExtractorConfig) *Extractor {
	return New(Options{
		Policy:        Policy(cfg.Policy),
		UserAgent:     cfg.UserAgent,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxSizeMB:     cfg.MaxSizeMB,
		PDFLicenseKey: cfg.PDFLicenseKey,
	})
}

// Policy returns the extraction policy in use.
func (e *Extractor) Policy() Policy {
	return e.policy
}

// Extract fetches rawURL and returns its article text, one fragment per line.
// Every error returned is a *Failure.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	p, err := e.fetch(ctx, rawURL)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Kind: KindError, URL: rawURL, Err: err}
		}
		log.Printf("[Extractor] %s: %v", rawURL, f)
		return "", f
	}

	var fragments []string
	if isPDF(p.contentType) {
		fragments, err = pdfFragments(p.body)
	} else {
		fragments, err = e.policy.fragments(p)
	}
	if err != nil {
		log.Printf("[Extractor] Parse failed for %s: %v", rawURL, err)
		return "", &Failure{Kind: KindError, URL: rawURL, Err: err}
	}

	text := strings.Join(fragments, "\n")
	if text == "" {
		log.Printf("[Extractor] No content at %s (policy=%s)", rawURL, e.policy)
		return "", &Failure{Kind: KindEmpty, URL: rawURL}
	}

	log.Printf("[Extractor] Extracted %d fragments (%d chars) from %s", len(fragments), len(text), rawURL)
	return text, nil
}

// Text is the string boundary form of Extract: the article text, or the
// failure's sentinel message. It never fails.
func (e *Extractor) Text(ctx context.Context, rawURL string) string {
	text, err := e.Extract(ctx, rawURL)
	if err != nil {
		return err.Error()
	}
	return text
}

// fetch retrieves the raw body of rawURL.
func (e *Extractor) fetch(ctx context.Context, rawURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Browser-like headers; plenty of news sites answer 403 to bare clients.
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Failure{Kind: KindFetch, URL: rawURL, Status: resp.StatusCode}
	}

	maxBytes := int64(e.maxSizeMB) * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("content exceeds size limit of %dMB", e.maxSizeMB)
	}

	return &page{
		body:        body,
		contentType: resp.Header.Get("Content-Type"),
		url:         resp.Request.URL,
	}, nil
}

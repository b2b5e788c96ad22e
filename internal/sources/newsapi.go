package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const newsAPIBaseURL = "https://newsapi.org"

type NewsAPIClient struct {
	apiKey     string
	query      string
	language   string
	baseURL    string
	httpClient *http.Client
}

func NewNewsAPIClient(apiKey, query, language string, timeout time.Duration) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey:     apiKey,
		query:      query,
		language:   language,
		baseURL:    newsAPIBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *NewsAPIClient) Name() string {
	return "NewsAPI"
}

func (c *NewsAPIClient) Fetch(ctx context.Context, limit int) ([]Listing, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsapi: no api key configured")
	}
	q := url.Values{}
	q.Set("q", c.query)
	q.Set("language", c.language)
	q.Set("pageSize", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/top-headlines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi fetch: %w", err)
	}
	defer resp.Body.Close()

	var raw newsAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("newsapi decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || raw.Status == "error" {
		return nil, fmt.Errorf("newsapi status %d: %s", resp.StatusCode, raw.Message)
	}

	listings := make([]Listing, 0, len(raw.Articles))
	for _, a := range raw.Articles {
		if len(listings) == limit {
			break
		}
		listings = append(listings, Listing{Title: a.Title, Link: a.URL, Source: c.Name()})
	}
	return listings, nil
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

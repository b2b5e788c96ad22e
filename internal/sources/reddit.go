package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
)

var errNoRedditCredentials = errors.New("reddit: no client credentials configured")

// RedditClient reads hot posts of one subreddit using application-only OAuth.
// The client-credentials token is fetched on first use and cached until it
// expires.
type RedditClient struct {
	subreddit  string
	apiURL     string
	hasCreds   bool
	httpClient *http.Client
}

func NewRedditClient(clientID, clientSecret, userAgent, subreddit string, timeout time.Duration) *RedditClient {
	return newRedditClient(clientID, clientSecret, userAgent, subreddit, timeout, redditAuthURL, redditAPIURL)
}

func newRedditClient(clientID, clientSecret, userAgent, subreddit string, timeout time.Duration, authURL, apiURL string) *RedditClient {
	// Reddit rejects requests without a descriptive User-Agent, token exchange included.
	base := &http.Client{
		Timeout:   timeout,
		Transport: userAgentTransport{userAgent: userAgent, base: http.DefaultTransport},
	}
	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     authURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := creds.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	httpClient.Timeout = timeout

	return &RedditClient{
		subreddit:  subreddit,
		apiURL:     apiURL,
		hasCreds:   clientID != "" && clientSecret != "",
		httpClient: httpClient,
	}
}

func (c *RedditClient) Name() string {
	return "Reddit"
}

func (c *RedditClient) Fetch(ctx context.Context, limit int) ([]Listing, error) {
	if !c.hasCreds {
		return nil, errNoRedditCredentials
	}

	endpoint := fmt.Sprintf("%s/r/%s/hot?limit=%d&raw_json=1", c.apiURL, url.PathEscape(c.subreddit), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("reddit request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit status %d", resp.StatusCode)
	}

	var raw redditListing
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("reddit decode: %w", err)
	}

	listings := make([]Listing, 0, len(raw.Data.Children))
	for _, child := range raw.Data.Children {
		// Stickied posts are pinned announcements, not part of the hot list.
		if child.Data.Stickied {
			continue
		}
		if len(listings) == limit {
			break
		}
		listings = append(listings, Listing{Title: child.Data.Title, Link: child.Data.URL, Source: c.Name()})
	}
	return listings, nil
}

type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title    string `json:"title"`
				URL      string `json:"url"`
				Stickied bool   `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

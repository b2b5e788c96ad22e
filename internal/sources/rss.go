package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

type RSSClient struct {
	feedURL string
	parser  *gofeed.Parser
}

func NewRSSClient(feedURL, userAgent string, timeout time.Duration) *RSSClient {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &RSSClient{feedURL: feedURL, parser: parser}
}

func (c *RSSClient) Name() string {
	return "RSS"
}

func (c *RSSClient) Fetch(ctx context.Context, limit int) ([]Listing, error) {
	feed, err := c.parser.ParseURLWithContext(c.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	count := min(len(feed.Items), limit)
	listings := make([]Listing, 0, count)
	for _, item := range feed.Items[:count] {
		listings = append(listings, Listing{Title: item.Title, Link: item.Link, Source: c.Name()})
	}
	return listings, nil
}

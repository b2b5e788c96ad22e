package sources

import (
	"context"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"openlens/internal/config"
)

// MaxListings caps how many entries are returned per source.
const MaxListings = 10

// Group is one source's listings, in the order the explorer shows them.
type Group struct {
	Source   string    `json:"source"`
	Listings []Listing `json:"listings"`
}

// Explorer queries every configured source concurrently. A source that fails
// contributes a single error listing; it never fails the whole call.
type Explorer struct {
	fetchers     []Fetcher
	timeout      time.Duration
	defaultLimit int
}

func NewExplorer(timeout time.Duration, fetchers ...Fetcher) *Explorer {
	return &Explorer{fetchers: fetchers, timeout: timeout, defaultLimit: MaxListings}
}

func NewExplorerFromConfig(cfg config.SourcesConfig, userAgent string) *Explorer {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	e := NewExplorer(timeout,
		NewNewsAPIClient(cfg.NewsAPI.APIKey, cfg.NewsAPI.Query, cfg.NewsAPI.Language, timeout),
		NewRSSClient(cfg.RSS.URL, userAgent, timeout),
		NewRedditClient(cfg.Reddit.ClientID, cfg.Reddit.ClientSecret, cfg.Reddit.UserAgent, cfg.Reddit.Subreddit, timeout),
	)
	e.defaultLimit = ParseLimit("", cfg.Limit)
	return e
}

// DefaultLimit is used when a caller does not ask for a specific count.
func (e *Explorer) DefaultLimit() int {
	return e.defaultLimit
}

func (e *Explorer) Explore(ctx context.Context, limit int) []Group {
	if limit < 1 || limit > MaxListings {
		limit = MaxListings
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	groups := make([]Group, len(e.fetchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range e.fetchers {
		i, f := i, f
		g.Go(func() error {
			listings, err := f.Fetch(gctx, limit)
			if err != nil {
				log.Printf("[Sources] %s failed: %v", f.Name(), err)
				listings = []Listing{errorListing(f.Name(), err)}
			} else if len(listings) > limit {
				listings = listings[:limit]
			}
			groups[i] = Group{Source: f.Name(), Listings: listings}
			return nil
		})
	}
	g.Wait()
	return groups
}

// ParseLimit reads a ?limit= value. Missing or invalid values give fallback;
// the result is always within [1, MaxListings].
func ParseLimit(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		n = fallback
	}
	if n < 1 || n > MaxListings {
		return MaxListings
	}
	return n
}

// Package sources fetches short headline listings for the explorer view.
package sources

import (
	"context"
	"fmt"
)

type Listing struct {
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
	Source string `json:"source"`
	// Error marks the sentinel entry returned in place of listings when the
	// upstream call failed.
	Error string `json:"error,omitempty"`
}

type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]Listing, error)
}

func errorListing(source string, err error) Listing {
	return Listing{
		Title:  fmt.Sprintf("Error fetching %s: %v", source, err),
		Source: source,
		Error:  err.Error(),
	}
}

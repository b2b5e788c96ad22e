// Package memory holds the per-session log of past analyses.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one recorded analysis. Entries never change after Append.
type Entry struct {
	Sequence  int64     `json:"sequence"`
	URL       string    `json:"url"`
	Question  string    `json:"question"`
	ResultRaw string    `json:"result_raw"`
	CreatedAt time.Time `json:"created_at"`
}

// Order selects how List returns entries.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

func (o Order) String() string {
	if o == OldestFirst {
		return "oldest"
	}
	return "newest"
}

// ParseOrder accepts "newest"/"oldest" (and the -first forms); empty means newest.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newest", "newest-first", "newest_first", "desc":
		return NewestFirst, nil
	case "oldest", "oldest-first", "oldest_first", "asc":
		return OldestFirst, nil
	}
	return NewestFirst, fmt.Errorf("unknown order %q", s)
}

// Store is an append-only session log.
//
// Append assigns the next sequence number (1 for the first entry of a session)
// and returns the stored entry. Sequence numbers strictly increase in append
// order. Reset starts the numbering again at 1, so a number identifies an entry
// only between resets.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, order Order) ([]Entry, error)
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

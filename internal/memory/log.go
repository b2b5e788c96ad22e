package memory

import (
	"context"
	"sync"
	"time"
)

// Log is the in-process Store.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	nextSeq  int64
	capacity int
	now      func() time.Time
}

// NewLog returns an empty log. capacity > 0 bounds the number of retained
// entries by evicting the oldest; sequence numbers keep increasing regardless.
func NewLog(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{capacity: capacity, now: time.Now}
}

func (l *Log) Append(_ context.Context, e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	e.Sequence = l.nextSeq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	if l.capacity > 0 && len(l.entries) >= l.capacity {
		// Shift instead of reslicing so the backing array does not grow forever.
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = e
	} else {
		l.entries = append(l.entries, e)
	}
	return e, nil
}

// List returns a copy of the retained entries.
func (l *Log) List(_ context.Context, order Order) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	if order == OldestFirst {
		copy(out, l.entries)
		return out, nil
	}
	for i, e := range l.entries {
		out[len(out)-1-i] = e
	}
	return out, nil
}

func (l *Log) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Reset empties the log and restarts sequence numbering.
func (l *Log) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.nextSeq = 0
	return nil
}

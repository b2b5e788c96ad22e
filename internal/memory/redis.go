package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	seqKeyFmt     = "openlens:session:%s:seq"
	entriesKeyFmt = "openlens:session:%s:entries"
)

// RedisLog is a Store kept in Redis. Together with the Redis session registry
// in package session, any API instance can serve the session. Both keys expire
// with the session TTL.
type RedisLog struct {
	rdb        *redis.Client
	seqKey     string
	entriesKey string
	capacity   int
	ttl        time.Duration
}

// NewRedisLog returns the log for sessionID.
func NewRedisLog(rdb *redis.Client, sessionID string, capacity int, ttl time.Duration) *RedisLog {
	return &RedisLog{
		rdb:        rdb,
		seqKey:     fmt.Sprintf(seqKeyFmt, sessionID),
		entriesKey: fmt.Sprintf(entriesKeyFmt, sessionID),
		capacity:   capacity,
		ttl:        ttl,
	}
}

func (r *RedisLog) Append(ctx context.Context, e Entry) (Entry, error) {
	seq, err := r.rdb.Incr(ctx, r.seqKey).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to assign sequence: %w", err)
	}
	e.Sequence = seq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode entry: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.entriesKey, raw)
		if r.capacity > 0 {
			pipe.LTrim(ctx, r.entriesKey, int64(-r.capacity), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, r.entriesKey, r.ttl)
			pipe.Expire(ctx, r.seqKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to store entry: %w", err)
	}
	return e, nil
}

// List decodes every retained entry. Concurrent appends may push out of
// sequence order, so entries are sorted by Sequence before returning.
func (r *RedisLog) List(ctx context.Context, order Order) ([]Entry, error) {
	raws, err := r.rdb.LRange(ctx, r.entriesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("corrupt entry in %s: %w", r.entriesKey, err)
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if order == OldestFirst {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Sequence > out[j].Sequence
	})
	return out, nil
}

func (r *RedisLog) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.LLen(ctx, r.entriesKey).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Touch pushes the expiry of both keys out to the full TTL. Missing keys are
// ignored.
func (r *RedisLog) Touch(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, r.entriesKey, r.ttl)
		pipe.Expire(ctx, r.seqKey, r.ttl)
		return nil
	})
	return err
}

// Reset deletes the session's keys; the next Append starts again at 1.
func (r *RedisLog) Reset(ctx context.Context) error {
	return r.rdb.Del(ctx, r.entriesKey, r.seqKey).Err()
}
